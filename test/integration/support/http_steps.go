package support

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/ocrsam/internal/masktable"
	"github.com/MeKo-Tech/ocrsam/internal/testutil"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
	"github.com/cucumber/godog"
)

// do sends req and records the response.
func (tc *TestContext) do(req *http.Request) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	tc.LastStatus = resp.StatusCode
	tc.LastBody = body
	tc.LastContentType = resp.Header.Get("Content-Type")
	tc.LastHeaders = map[string]string{}
	for k := range resp.Header {
		tc.LastHeaders[k] = resp.Header.Get(k)
	}
	tc.LastImage = nil
	if strings.HasPrefix(tc.LastContentType, "image/png") {
		img, err := utils.DecodeImage(bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("response is not a PNG: %w", err)
		}
		tc.LastImage = img
	}
	return nil
}

// postForm uploads image data with extra fields as multipart form data.
func (tc *TestContext) postForm(path string, imageData []byte, fields map[string]string) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if imageData != nil {
		part, err := w.CreateFormFile("image", "scene.png")
		if err != nil {
			return err
		}
		if _, err := part.Write(imageData); err != nil {
			return err
		}
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, tc.Server.URL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return tc.do(req)
}

func (tc *TestContext) scenePNG() ([]byte, error) {
	return utils.EncodePNG(tc.Scene)
}

func (tc *TestContext) iUploadTheSceneForDetection() error {
	data, err := tc.scenePNG()
	if err != nil {
		return err
	}
	if err := tc.postForm("/api/detect", data, nil); err != nil {
		return err
	}
	if tc.LastStatus != http.StatusOK {
		return nil
	}
	var resp struct {
		Summary   string `json:"summary"`
		MaskTable string `json:"mask_table"`
		Preview   string `json:"preview"`
	}
	if err := json.Unmarshal(tc.LastBody, &resp); err != nil {
		return fmt.Errorf("invalid detect response: %w", err)
	}
	tc.Summary = resp.Summary
	tc.MaskTable = resp.MaskTable
	if resp.Preview != "" {
		raw, err := base64.StdEncoding.DecodeString(resp.Preview)
		if err != nil {
			return fmt.Errorf("invalid preview encoding: %w", err)
		}
		if tc.LastImage, err = utils.DecodeImage(bytes.NewReader(raw)); err != nil {
			return fmt.Errorf("invalid preview image: %w", err)
		}
	}
	return nil
}

func (tc *TestContext) iRanDetectionOnTheScene() error {
	if err := tc.iUploadTheSceneForDetection(); err != nil {
		return err
	}
	if tc.LastStatus != http.StatusOK {
		return fmt.Errorf("detection failed with status %d: %s", tc.LastStatus, tc.LastBody)
	}
	return nil
}

func (tc *TestContext) iUploadAnInvalidFileForDetection() error {
	return tc.postForm("/api/detect", []byte("definitely not an image"), nil)
}

func (tc *TestContext) inpaint(index, prompt, seed string) error {
	data, err := tc.scenePNG()
	if err != nil {
		return err
	}
	fields := map[string]string{
		"mask_table": tc.MaskTable,
		"index":      index,
		"prompt":     prompt,
	}
	if seed != "" {
		fields["seed"] = seed
	}
	return tc.postForm("/api/inpaint", data, fields)
}

func (tc *TestContext) iInpaintRegionWithPromptAndSeed(index int, prompt string, seed int64) error {
	return tc.inpaint(strconv.Itoa(index), prompt, strconv.FormatInt(seed, 10))
}

func (tc *TestContext) iInpaintRegionWithPrompt(index string, prompt string) error {
	return tc.inpaint(index, prompt, "")
}

func (tc *TestContext) iInpaintRegionWithMaskTable(index int, table string) error {
	tc.MaskTable = table
	return tc.inpaint(strconv.Itoa(index), "moss", "")
}

func (tc *TestContext) iSaveTheResultAs(label string) error {
	if tc.LastImage == nil {
		return fmt.Errorf("no image in last response (status %d)", tc.LastStatus)
	}
	tc.Saved[label] = tc.LastImage
	return nil
}

func (tc *TestContext) iGET(path string) error {
	req, err := http.NewRequest(http.MethodGet, tc.Server.URL+path, nil)
	if err != nil {
		return err
	}
	return tc.do(req)
}

func (tc *TestContext) iSendOPTIONSTo(path string) error {
	req, err := http.NewRequest(http.MethodOptions, tc.Server.URL+path, nil)
	if err != nil {
		return err
	}
	return tc.do(req)
}

func (tc *TestContext) theResponseStatusShouldBe(status int) error {
	if tc.LastStatus != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, tc.LastStatus, tc.LastBody)
	}
	return nil
}

func (tc *TestContext) theErrorTypeShouldBe(kind string) error {
	var resp struct {
		Success   bool   `json:"success"`
		ErrorType string `json:"error_type"`
	}
	if err := json.Unmarshal(tc.LastBody, &resp); err != nil {
		return fmt.Errorf("error response is not JSON: %w", err)
	}
	if resp.Success || resp.ErrorType != kind {
		return fmt.Errorf("expected error type %q, got %q (success=%v)", kind, resp.ErrorType, resp.Success)
	}
	return nil
}

func (tc *TestContext) theSummaryShouldBe(doc *godog.DocString) error {
	want := strings.TrimSpace(doc.Content)
	if want != "" {
		want += "\n"
	}
	if tc.Summary != want {
		return fmt.Errorf("expected summary %q, got %q", want, tc.Summary)
	}
	return nil
}

func (tc *TestContext) theSummaryShouldBeEmpty() error {
	if tc.Summary != "" {
		return fmt.Errorf("expected empty summary, got %q", tc.Summary)
	}
	return nil
}

func (tc *TestContext) theMaskTableShouldDescribeRegions(n int) error {
	table, err := masktable.Decode(tc.MaskTable)
	if err != nil {
		return fmt.Errorf("mask table does not decode: %w", err)
	}
	if table.Len() != n {
		return fmt.Errorf("expected %d mask table entries, got %d", n, table.Len())
	}
	if table.Width != sceneWidth || table.Height != sceneHeight {
		return fmt.Errorf("mask table built for %dx%d", table.Width, table.Height)
	}
	return nil
}

func (tc *TestContext) thePreviewShouldMatchTheSceneSize() error {
	if tc.LastImage == nil {
		return fmt.Errorf("no preview decoded")
	}
	if b := tc.LastImage.Bounds(); b.Dx() != sceneWidth || b.Dy() != sceneHeight {
		return fmt.Errorf("preview is %dx%d", b.Dx(), b.Dy())
	}
	return nil
}

func (tc *TestContext) onlyPixelsInsideMaskShouldDiffer(index int) error {
	if tc.LastImage == nil {
		return fmt.Errorf("no image in last response (status %d): %s", tc.LastStatus, tc.LastBody)
	}
	table, err := masktable.Decode(tc.MaskTable)
	if err != nil {
		return err
	}
	entry, ok := table.Get(index)
	if !ok {
		return fmt.Errorf("mask %d not in table", index)
	}
	in, out := testutil.CountDiff(tc.Scene, tc.LastImage, entry.Mask.At)
	if out != 0 {
		return fmt.Errorf("%d pixels outside mask %d changed", out, index)
	}
	if in == 0 {
		return fmt.Errorf("no pixel inside mask %d changed", index)
	}
	return nil
}

func (tc *TestContext) savedImagesShouldBeIdentical(a, b string) error {
	in, out := testutil.CountDiff(tc.Saved[a], tc.Saved[b], func(int, int) bool { return true })
	if in+out != 0 {
		return fmt.Errorf("%s and %s differ in %d pixels", a, b, in+out)
	}
	return nil
}

func (tc *TestContext) savedImagesShouldDiffer(a, b string) error {
	in, _ := testutil.CountDiff(tc.Saved[a], tc.Saved[b], func(int, int) bool { return true })
	if in == 0 {
		return fmt.Errorf("%s and %s are identical", a, b)
	}
	return nil
}

func (tc *TestContext) theBackendShouldHaveReceivedRequests(n int) error {
	if got := tc.Backend.Requests(); got != n {
		return fmt.Errorf("expected %d backend requests, got %d", n, got)
	}
	return nil
}

func (tc *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(string(tc.LastBody), text) {
		return fmt.Errorf("response does not contain %q: %s", text, truncate(string(tc.LastBody), 300))
	}
	return nil
}

func (tc *TestContext) theHeaderShouldBe(name, value string) error {
	if got := tc.LastHeaders[http.CanonicalHeaderKey(name)]; got != value {
		return fmt.Errorf("expected header %s=%q, got %q", name, value, got)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// RegisterHTTPSteps registers the API steps.
func (tc *TestContext) RegisterHTTPSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I upload the scene for detection$`, tc.iUploadTheSceneForDetection)
	sc.Step(`^I ran detection on the scene$`, tc.iRanDetectionOnTheScene)
	sc.Step(`^I upload an invalid file for detection$`, tc.iUploadAnInvalidFileForDetection)
	sc.Step(`^I inpaint region (\d+) with prompt "([^"]*)" and seed (\d+)$`, tc.iInpaintRegionWithPromptAndSeed)
	sc.Step(`^I inpaint region "([^"]*)" with prompt "([^"]*)"$`, tc.iInpaintRegionWithPrompt)
	sc.Step(`^I inpaint region (\d+) with the mask table "([^"]*)"$`, tc.iInpaintRegionWithMaskTable)
	sc.Step(`^I save the result as "([^"]*)"$`, tc.iSaveTheResultAs)
	sc.Step(`^I GET "([^"]*)"$`, tc.iGET)
	sc.Step(`^I send OPTIONS to "([^"]*)"$`, tc.iSendOPTIONSTo)

	sc.Step(`^the response status should be (\d+)$`, tc.theResponseStatusShouldBe)
	sc.Step(`^the error type should be "([^"]*)"$`, tc.theErrorTypeShouldBe)
	sc.Step(`^the summary should be:$`, tc.theSummaryShouldBe)
	sc.Step(`^the summary should be empty$`, tc.theSummaryShouldBeEmpty)
	sc.Step(`^the mask table should describe (\d+) regions?$`, tc.theMaskTableShouldDescribeRegions)
	sc.Step(`^the preview should match the scene size$`, tc.thePreviewShouldMatchTheSceneSize)
	sc.Step(`^only pixels inside mask (\d+) should differ from the scene$`, tc.onlyPixelsInsideMaskShouldDiffer)
	sc.Step(`^"([^"]*)" and "([^"]*)" should be identical$`, tc.savedImagesShouldBeIdentical)
	sc.Step(`^"([^"]*)" and "([^"]*)" should differ$`, tc.savedImagesShouldDiffer)
	sc.Step(`^the diffusion backend should have received (\d+) requests?$`, tc.theBackendShouldHaveReceivedRequests)
	sc.Step(`^the response should contain "([^"]*)"$`, tc.theResponseShouldContain)
	sc.Step(`^the "([^"]*)" header should be "([^"]*)"$`, tc.theHeaderShouldBe)
}

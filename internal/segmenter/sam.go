package segmenter

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/ocrsam/internal/onnx"
	ort "github.com/yalue/onnxruntime_go"
)

// Decoder input and output names of the exported SAM prompt decoder.
var (
	decoderInputs  = []string{"image_embeddings", "point_coords", "point_labels", "mask_input", "has_mask_input", "orig_im_size"}
	decoderOutputs = []string{"masks", "iou_predictions", "low_res_masks"}
)

const lowResMaskSize = 256

// Box prompt point labels used by SAM.
const (
	labelBoxTopLeft     = 2
	labelBoxBottomRight = 3
)

// embedding is the encoder output for one image.
type embedding struct {
	Data  []float32
	Shape []int64
}

// prediction is one decoded mask as logits.
type prediction struct {
	Logits []float32
	Width  int
	Height int
	Score  float64
}

type imageEncoder interface {
	encode(input onnx.Tensor) (embedding, error)
	destroy() error
}

type promptDecoder interface {
	decode(emb embedding, box [4]float32, origW, origH int) (prediction, error)
	destroy() error
}

type onnxEncoder struct {
	session *ort.DynamicAdvancedSession
}

func newONNXEncoder(path string, opts onnx.SessionOptions) (*onnxEncoder, ort.InputOutputInfo, error) {
	inputs, outputs, err := onnx.ModelIO(path)
	if err != nil {
		return nil, ort.InputOutputInfo{}, err
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, ort.InputOutputInfo{}, fmt.Errorf("encoder: expected 1 input and at least 1 output, got %d and %d",
			len(inputs), len(outputs))
	}
	session, err := onnx.NewSession(path, []string{inputs[0].Name}, []string{outputs[0].Name}, opts)
	if err != nil {
		return nil, ort.InputOutputInfo{}, err
	}
	return &onnxEncoder{session: session}, inputs[0], nil
}

func (e *onnxEncoder) encode(input onnx.Tensor) (embedding, error) {
	value, err := input.Value()
	if err != nil {
		return embedding{}, err
	}
	defer onnx.Destroy(value)

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{value}, outputs); err != nil {
		return embedding{}, fmt.Errorf("encoder inference failed: %w", err)
	}
	defer onnx.Destroy(outputs...)

	data, shape, err := onnx.Float32Data(outputs[0])
	if err != nil {
		return embedding{}, err
	}
	// Copy out of the runtime-owned buffer so the embedding outlives the value.
	return embedding{Data: append([]float32(nil), data...), Shape: append([]int64(nil), shape...)}, nil
}

func (e *onnxEncoder) destroy() error { return e.session.Destroy() }

type onnxDecoder struct {
	session *ort.DynamicAdvancedSession
}

func newONNXDecoder(path string, opts onnx.SessionOptions) (*onnxDecoder, error) {
	session, err := onnx.NewSession(path, decoderInputs, decoderOutputs, opts)
	if err != nil {
		return nil, err
	}
	return &onnxDecoder{session: session}, nil
}

// decoderFeeds builds the decoder inputs for a single box prompt.
func decoderFeeds(box [4]float32, origW, origH int) (coords, labels, maskInput, hasMask, size []float32) {
	coords = []float32{box[0], box[1], box[2], box[3]}
	labels = []float32{labelBoxTopLeft, labelBoxBottomRight}
	maskInput = make([]float32, lowResMaskSize*lowResMaskSize)
	hasMask = []float32{0}
	size = []float32{float32(origH), float32(origW)}
	return coords, labels, maskInput, hasMask, size
}

func (d *onnxDecoder) decode(emb embedding, box [4]float32, origW, origH int) (prediction, error) {
	coords, labels, maskInput, hasMask, size := decoderFeeds(box, origW, origH)
	type feed struct {
		data  []float32
		shape ort.Shape
	}
	feeds := []feed{
		{emb.Data, ort.NewShape(emb.Shape...)},
		{coords, ort.NewShape(1, 2, 2)},
		{labels, ort.NewShape(1, 2)},
		{maskInput, ort.NewShape(1, 1, lowResMaskSize, lowResMaskSize)},
		{hasMask, ort.NewShape(1)},
		{size, ort.NewShape(2)},
	}
	inputs := make([]ort.Value, 0, len(feeds))
	defer func() { onnx.Destroy(inputs...) }()
	for _, f := range feeds {
		v, err := ort.NewTensor(f.shape, f.data)
		if err != nil {
			return prediction{}, fmt.Errorf("failed to create decoder input: %w", err)
		}
		inputs = append(inputs, v)
	}

	outputs := make([]ort.Value, len(decoderOutputs))
	if err := d.session.Run(inputs, outputs); err != nil {
		return prediction{}, fmt.Errorf("decoder inference failed: %w", err)
	}
	defer onnx.Destroy(outputs...)

	masks, shape, err := onnx.Float32Data(outputs[0])
	if err != nil {
		return prediction{}, err
	}
	if len(shape) != 4 {
		return prediction{}, fmt.Errorf("expected 4D mask output, got %dD", len(shape))
	}
	scores, _, err := onnx.Float32Data(outputs[1])
	if err != nil {
		return prediction{}, err
	}
	w, h := int(shape[3]), int(shape[2])
	p := prediction{Logits: append([]float32(nil), masks[:w*h]...), Width: w, Height: h}
	if len(scores) > 0 {
		p.Score = float64(scores[0])
	}
	return p, nil
}

func (d *onnxDecoder) destroy() error { return d.session.Destroy() }

func destroyAll(enc imageEncoder, dec promptDecoder) error {
	var errs []error
	if enc != nil {
		errs = append(errs, enc.destroy())
	}
	if dec != nil {
		errs = append(errs, dec.destroy())
	}
	return errors.Join(errs...)
}

package wake

import (
	"fmt"
	"path/filepath"

	ort "github.com/yalue/onnxruntime_go"
)

type ONNXConfig struct {
	ModelDir string // holds <model>.onnx, melspectrogram.onnx, embedding_model.onnx
	Model    string
	OnnxLib  string
}

func (c ONNXConfig) path(name string) string {
	return filepath.Join(c.ModelDir, name+".onnx")
}

// ONNXScorer runs the openWakeWord models through onnxruntime.
type ONNXScorer struct {
	p        *pipeline
	sessions []*ort.AdvancedSession
	tensors  []*ort.Tensor[float32]
}

func NewONNXScorer(cfg ONNXConfig) (*ONNXScorer, error) {
	ort.SetSharedLibraryPath(cfg.OnnxLib)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("init onnxruntime: %w", err)
	}

	s := &ONNXScorer{p: newPipeline()}

	mel, err := s.stage(cfg.path("melspectrogram"),
		ort.NewShape(1, ChunkSamples), ort.NewShape(1, 1, melFrames, melBins))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("melspectrogram: %w", err)
	}
	embed, err := s.stage(cfg.path("embedding_model"),
		ort.NewShape(1, melWindow, melBins, 1), ort.NewShape(1, 1, 1, embedDim))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("embedding: %w", err)
	}
	classify, err := s.stage(cfg.path(cfg.Model),
		ort.NewShape(1, embedFrames, embedDim), ort.NewShape(1, 1))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%s: %w", cfg.Model, err)
	}

	s.p.mel = mel
	s.p.embed = embed
	s.p.classify = func(in []float32) (float32, error) {
		out, err := classify(in)
		if err != nil {
			return 0, err
		}
		return out[0], nil
	}
	return s, nil
}

// stage opens one model with fixed input and output tensors and returns a
// function that copies its input in, runs the session and returns the
// output tensor data.
func (s *ONNXScorer) stage(path string, inShape, outShape ort.Shape) (func([]float32) ([]float32, error), error) {
	in, err := ort.NewEmptyTensor[float32](inShape)
	if err != nil {
		return nil, err
	}
	s.tensors = append(s.tensors, in)

	out, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		return nil, err
	}
	s.tensors = append(s.tensors, out)

	inInfo, outInfo, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, err
	}

	sess, err := ort.NewAdvancedSession(path,
		[]string{inInfo[0].Name}, []string{outInfo[0].Name},
		[]ort.Value{in}, []ort.Value{out},
		nil,
	)
	if err != nil {
		return nil, err
	}
	s.sessions = append(s.sessions, sess)

	return func(data []float32) ([]float32, error) {
		copy(in.GetData(), data)
		if err := sess.Run(); err != nil {
			return nil, err
		}
		return out.GetData(), nil
	}, nil
}

func (s *ONNXScorer) Score(chunk []int16) (float32, error) {
	return s.p.push(chunk)
}

func (s *ONNXScorer) Reset() {
	s.p.reset()
}

func (s *ONNXScorer) Close() error {
	for _, sess := range s.sessions {
		sess.Destroy()
	}
	for _, t := range s.tensors {
		t.Destroy()
	}
	return ort.DestroyEnvironment()
}

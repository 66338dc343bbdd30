package walkforward

import (
	"time"

	"github.com/alejandrodnm/execsim/internal/domain"
)

// month es la duración de un "mes" del splitter.
const month = 30 * 24 * time.Hour

// Splitter corta un rango en ventanas train/test consecutivas que avanzan
// StepMonths cada vez. El test empieza donde acaba el train.
type Splitter struct {
	TrainMonths int `yaml:"train_months"`
	TestMonths  int `yaml:"test_months"`
	StepMonths  int `yaml:"step_months"`
}

// DefaultSplitter es 12 meses de train, 3 de test, avanzando 1.
func DefaultSplitter() Splitter {
	return Splitter{TrainMonths: 12, TestMonths: 3, StepMonths: 1}
}

// Split devuelve las ventanas completas dentro de [start, end].
func (s Splitter) Split(start, end time.Time) []domain.Window {
	if s.TrainMonths <= 0 || s.TestMonths <= 0 || s.StepMonths <= 0 {
		return nil
	}
	train := time.Duration(s.TrainMonths) * month
	test := time.Duration(s.TestMonths) * month
	step := time.Duration(s.StepMonths) * month

	var out []domain.Window
	for cur := start; ; cur = cur.Add(step) {
		w := domain.Window{
			Index:      len(out),
			TrainStart: cur,
			TrainEnd:   cur.Add(train),
		}
		w.TestStart = w.TrainEnd
		w.TestEnd = w.TestStart.Add(test)
		if w.TestEnd.After(end) {
			break
		}
		out = append(out, w)
	}
	return out
}

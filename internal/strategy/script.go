package strategy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alejandrodnm/execsim/internal/domain"
	"github.com/alejandrodnm/execsim/internal/ports"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

const (
	scriptEntryPoint = "detect"
	// defaultMaxSteps limita cada llamada a detect para que un script con
	// un bucle infinito no cuelgue el backtest.
	defaultMaxSteps = 50_000_000
)

var scriptFileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
}

// Script es una estrategia escrita en Starlark. El fichero define
//
//	def detect(prices, params):
//	    return [{"pair1": ..., "pair2": ..., "confidence": ..., ...}]
//
// donde prices es un dict símbolo → lista de cierres y params (opcional)
// lleva correlation_threshold y min_confidence. El script puede usar los
// builtins returns(closes) y pearson(x, y).
type Script struct {
	name     string
	detect   *starlark.Function
	params   domain.StrategyParams
	maxSteps uint64
}

// LoadScript compila el fichero y valida que defina detect.
func LoadScript(path string) (*Script, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("strategy.LoadScript: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return NewScript(name, path, src)
}

// NewScript compila el código fuente dado. filename solo se usa en los mensajes de error.
func NewScript(name, filename string, src []byte) (*Script, error) {
	thread := &starlark.Thread{Name: "load:" + name}
	globals, err := starlark.ExecFileOptions(scriptFileOptions, thread, filename, src, scriptBuiltins())
	if err != nil {
		return nil, fmt.Errorf("strategy.NewScript: %s: %w", filename, err)
	}
	fn, ok := globals[scriptEntryPoint].(*starlark.Function)
	if !ok {
		return nil, fmt.Errorf("strategy.NewScript: %s: no %s function defined", filename, scriptEntryPoint)
	}
	if fn.NumParams() < 1 || fn.NumParams() > 2 {
		return nil, fmt.Errorf("strategy.NewScript: %s: %s must take (prices) or (prices, params), got %d params",
			filename, scriptEntryPoint, fn.NumParams())
	}
	return &Script{
		name:     "script:" + name,
		detect:   fn,
		maxSteps: defaultMaxSteps,
		params: domain.StrategyParams{
			CorrelationThreshold: DefaultCorrelationConfig().Threshold,
			MinConfidence:        DefaultCorrelationConfig().MinConfidence,
		},
	}, nil
}

// Name implementa ports.Strategy.
func (s *Script) Name() string {
	return s.name
}

// WithParams implementa ports.TunableStrategy. Los globals del script están
// congelados, así que las copias pueden usarse desde varias goroutines.
func (s *Script) WithParams(p domain.StrategyParams) ports.Strategy {
	cp := *s
	cp.params = p
	return &cp
}

// Detect implementa ports.Strategy.
func (s *Script) Detect(ctx context.Context, history map[string][]domain.PricePoint) ([]domain.Opportunity, error) {
	thread := &starlark.Thread{Name: s.name}
	thread.SetMaxExecutionSteps(s.maxSteps)
	stop := context.AfterFunc(ctx, func() { thread.Cancel(ctx.Err().Error()) })
	defer stop()

	prices, detectedAt := pricesValue(history)
	args := starlark.Tuple{prices}
	if s.detect.NumParams() == 2 {
		args = append(args, paramsValue(s.params))
	}

	out, err := starlark.Call(thread, s.detect, args, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}

	opps, err := s.toOpportunities(out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	for i := range opps {
		opps[i].DetectedAt = detectedAt.Timestamp
		opps[i].Strategy = s.name
	}
	return opps, nil
}

func pricesValue(history map[string][]domain.PricePoint) (*starlark.Dict, domain.PricePoint) {
	symbols := make([]string, 0, len(history))
	for sym := range history {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var latest domain.PricePoint
	d := starlark.NewDict(len(history))
	for _, sym := range symbols {
		points := history[sym]
		closes := make([]starlark.Value, len(points))
		for i, p := range points {
			closes[i] = starlark.Float(p.Close)
		}
		if n := len(points); n > 0 && points[n-1].Timestamp.After(latest.Timestamp) {
			latest = points[n-1]
		}
		_ = d.SetKey(starlark.String(sym), starlark.NewList(closes))
	}
	return d, latest
}

func paramsValue(p domain.StrategyParams) *starlark.Dict {
	d := starlark.NewDict(2)
	_ = d.SetKey(starlark.String("correlation_threshold"), starlark.Float(p.CorrelationThreshold))
	_ = d.SetKey(starlark.String("min_confidence"), starlark.Float(p.MinConfidence))
	return d
}

func (s *Script) toOpportunities(v starlark.Value) ([]domain.Opportunity, error) {
	if v == starlark.None {
		return nil, nil
	}
	iter := starlark.Iterate(v)
	if iter == nil {
		return nil, fmt.Errorf("%s must return a list, got %s", scriptEntryPoint, v.Type())
	}
	defer iter.Done()

	var (
		out  []domain.Opportunity
		item starlark.Value
	)
	for i := 0; iter.Next(&item); i++ {
		d, ok := item.(*starlark.Dict)
		if !ok {
			return nil, fmt.Errorf("result[%d]: want dict, got %s", i, item.Type())
		}
		opp, err := opportunityFromDict(d)
		if err != nil {
			return nil, fmt.Errorf("result[%d]: %w", i, err)
		}
		out = append(out, opp)
	}
	return out, nil
}

func opportunityFromDict(d *starlark.Dict) (domain.Opportunity, error) {
	var (
		opp domain.Opportunity
		err error
	)
	if opp.Pair1, err = dictString(d, "pair1", true); err != nil {
		return opp, err
	}
	if opp.Pair2, err = dictString(d, "pair2", true); err != nil {
		return opp, err
	}
	floats := []struct {
		key      string
		dst      *float64
		required bool
	}{
		{"confidence", &opp.Confidence, true},
		{"expected_return", &opp.ExpectedReturn, true},
		{"risk_level", &opp.RiskLevel, true},
		{"current_correlation", &opp.CurrentCorrelation, false},
		{"historical_correlation", &opp.HistoricalCorrelation, false},
	}
	for _, f := range floats {
		if *f.dst, err = dictFloat(d, f.key, f.required); err != nil {
			return opp, err
		}
	}
	return opp, nil
}

func dictString(d *starlark.Dict, key string, required bool) (string, error) {
	v, found, err := d.Get(starlark.String(key))
	if err != nil {
		return "", err
	}
	if !found {
		if required {
			return "", fmt.Errorf("missing %q", key)
		}
		return "", nil
	}
	s, ok := starlark.AsString(v)
	if !ok {
		return "", fmt.Errorf("%q: want string, got %s", key, v.Type())
	}
	return s, nil
}

func dictFloat(d *starlark.Dict, key string, required bool) (float64, error) {
	v, found, err := d.Get(starlark.String(key))
	if err != nil {
		return 0, err
	}
	if !found {
		if required {
			return 0, fmt.Errorf("missing %q", key)
		}
		return 0, nil
	}
	f, ok := starlark.AsFloat(v)
	if !ok {
		return 0, fmt.Errorf("%q: want number, got %s", key, v.Type())
	}
	return f, nil
}

// scriptBuiltins expone los helpers numéricos del detector de correlación.
func scriptBuiltins() starlark.StringDict {
	return starlark.StringDict{
		"returns": starlark.NewBuiltin("returns", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var prices *starlark.List
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &prices); err != nil {
				return nil, err
			}
			xs, err := floatList(b.Name(), prices)
			if err != nil {
				return nil, err
			}
			return toList(Returns(xs)), nil
		}),
		"pearson": starlark.NewBuiltin("pearson", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var x, y *starlark.List
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &x, &y); err != nil {
				return nil, err
			}
			xs, err := floatList(b.Name(), x)
			if err != nil {
				return nil, err
			}
			ys, err := floatList(b.Name(), y)
			if err != nil {
				return nil, err
			}
			return starlark.Float(Pearson(xs, ys)), nil
		}),
	}
}

func floatList(fn string, l *starlark.List) ([]float64, error) {
	out := make([]float64, l.Len())
	for i := range l.Len() {
		f, ok := starlark.AsFloat(l.Index(i))
		if !ok {
			return nil, fmt.Errorf("%s: element %d is %s, want number", fn, i, l.Index(i).Type())
		}
		out[i] = f
	}
	return out, nil
}

func toList(xs []float64) *starlark.List {
	elems := make([]starlark.Value, len(xs))
	for i, x := range xs {
		elems[i] = starlark.Float(x)
	}
	return starlark.NewList(elems)
}

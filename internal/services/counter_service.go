package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/annapurna-foods/api/internal/repositories"
)

const (
	orderNumberCounterID   = "orderNumber"
	invoiceNumberCounterID = "invoiceNumber"

	orderNumberPrefix   = "ORD-"
	invoiceNumberPrefix = "INV-"
	sequencePadLength   = 5
)

var (
	// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
	ErrCounterInvalidInput = errors.New("counter: invalid input")
	// ErrCounterExhausted indicates the requested counter cannot increment further due to max bounds.
	ErrCounterExhausted = errors.New("counter: exhausted")
)

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
}

type counterService struct {
	repo       repositories.CounterRepository
	configMu   sync.Mutex
	configured map[string]counterConfigSignature
}

type counterConfigSignature struct {
	stepSet      bool
	step         int64
	maxSet       bool
	maxValue     int64
	initialSet   bool
	initialValue int64
}

// NewCounterService constructs a service that manages counter sequences on top of the repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}

	return &counterService{
		repo:       deps.Repository,
		configured: make(map[string]counterConfigSignature),
	}, nil
}

func (s *counterService) Next(ctx context.Context, counterID string, opts CounterGenerationOptions) (CounterValue, error) {
	counterID = strings.TrimSpace(counterID)
	if counterID == "" {
		return CounterValue{}, fmt.Errorf("%w: counter id is required", ErrCounterInvalidInput)
	}

	if err := s.ensureConfiguration(ctx, counterID, opts); err != nil {
		return CounterValue{}, err
	}

	value, err := s.repo.Next(ctx, counterID, opts.Step)
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			switch counterErr.Code {
			case repositories.CounterErrorInvalidInput:
				return CounterValue{}, fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Message)
			case repositories.CounterErrorExhausted:
				return CounterValue{}, fmt.Errorf("%w: %s", ErrCounterExhausted, counterErr.Message)
			}
		}
		return CounterValue{}, err
	}

	return CounterValue{Value: value, Formatted: formatCounterValue(value, opts)}, nil
}

// NextOrderNumber allocates the next human-facing order reference, e.g. ORD-00042.
func (s *counterService) NextOrderNumber(ctx context.Context) (string, error) {
	result, err := s.Next(ctx, orderNumberCounterID, CounterGenerationOptions{
		Step:      1,
		Prefix:    orderNumberPrefix,
		PadLength: sequencePadLength,
	})
	if err != nil {
		return "", err
	}
	return result.Formatted, nil
}

// NextInvoiceNumber allocates the next invoice reference, e.g. INV-00042. Order
// and invoice sequences advance independently.
func (s *counterService) NextInvoiceNumber(ctx context.Context) (string, error) {
	result, err := s.Next(ctx, invoiceNumberCounterID, CounterGenerationOptions{
		Step:      1,
		Prefix:    invoiceNumberPrefix,
		PadLength: sequencePadLength,
	})
	if err != nil {
		return "", err
	}
	return result.Formatted, nil
}

func (s *counterService) ensureConfiguration(ctx context.Context, counterID string, opts CounterGenerationOptions) error {
	signature := counterConfigSignature{}
	if opts.Step > 0 {
		signature.stepSet = true
		signature.step = opts.Step
	}
	if opts.MaxValue != nil {
		signature.maxSet = true
		signature.maxValue = *opts.MaxValue
	}
	if opts.InitialValue != nil {
		signature.initialSet = true
		signature.initialValue = *opts.InitialValue
	}

	s.configMu.Lock()
	defer s.configMu.Unlock()

	if existing, ok := s.configured[counterID]; ok && existing == signature {
		return nil
	}

	cfg := repositories.CounterConfig{}
	if signature.stepSet {
		cfg.Step = signature.step
	}
	if signature.maxSet {
		cfg.MaxValue = &signature.maxValue
	}
	if signature.initialSet {
		cfg.InitialValue = &signature.initialValue
	}

	if signature.stepSet || signature.maxSet || signature.initialSet {
		if err := s.repo.Configure(ctx, counterID, cfg); err != nil {
			return err
		}
	}
	s.configured[counterID] = signature
	return nil
}

func formatCounterValue(value int64, opts CounterGenerationOptions) string {
	if opts.Formatter != nil {
		return opts.Formatter(value)
	}

	formatted := strconv.FormatInt(value, 10)
	if opts.PadLength > 0 {
		formatted = fmt.Sprintf("%0*d", opts.PadLength, value)
	}
	if opts.Prefix != "" {
		formatted = opts.Prefix + formatted
	}
	if opts.Suffix != "" {
		formatted += opts.Suffix
	}
	return formatted
}

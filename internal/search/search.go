package search

import (
	"context"

	"github.com/HendryAvila/openproject-mcp/internal/filter"
	"github.com/HendryAvila/openproject-mcp/internal/logger"
)

// Service runs the whole pipeline: validate, compile, execute.
type Service struct {
	compiler *filter.Compiler
	executor *Executor
}

// NewService wires a compiler over r and an executor over tr.
func NewService(tr Transport, r filter.Resolver, log *logger.Logger) *Service {
	return &Service{
		compiler: filter.NewCompiler(r),
		executor: NewExecutor(tr, log),
	}
}

// Search validates p, compiles its filters and runs one query. Validation
// failures never reach the network.
func (s *Service) Search(ctx context.Context, p Params) (*Envelope, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	set, err := s.compiler.Compile(ctx, p.FilterInput())
	if err != nil {
		return nil, err
	}
	return s.executor.Execute(ctx, set, p.Sort(), p.Page())
}

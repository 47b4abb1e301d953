package common

import (
	"context"
	"fmt"

	"resumatch/internal/errors"
	"resumatch/internal/types"
)

// CreateInputFunc defines how to build a command-specific input from the
// ingested documents.
type CreateInputFunc[Input any] func(docs []types.RawDocument) (Input, error)

// LogDetailsFunc defines how to log the start of an operation.
type LogDetailsFunc[Input any] func(input Input, cfg CommandConfig)

// PipelineOperationFunc is a generic function signature for any pipeline
// operation with context.
type PipelineOperationFunc[Input, Output any] func(context.Context, Input) (Output, error)

// RunPipelineCommand encapsulates the common logic for file-based CLI commands:
// read and validate the input documents, build the operation input, run the
// operation, and hand the result to the output formatter.
func RunPipelineCommand[Input, Output any](
	ctx context.Context,
	logger *errors.Logger,
	cmdConfig CommandConfig,
	args []string,
	createInput CreateInputFunc[Input],
	operation PipelineOperationFunc[Input, Output],
	logDetails LogDetailsFunc[Input],
) error {
	fileProcessor := NewFileProcessor(logger)
	outputHandler := NewOutputHandler(logger)

	docs, err := fileProcessor.ValidateAndReadDocuments(args...)
	if err != nil {
		return err
	}

	input, err := createInput(docs)
	if err != nil {
		return fmt.Errorf("failed to create input from documents: %w", err)
	}

	logDetails(input, cmdConfig)

	result, err := operation(ctx, input)
	if err != nil {
		return err
	}

	return outputHandler.HandleOutput(result, cmdConfig)
}

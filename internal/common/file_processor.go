package common

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"resumatch/internal/errors"
	"resumatch/internal/types"
	"resumatch/internal/utils"
)

// FileProcessor handles common file operations
type FileProcessor struct {
	logger *errors.Logger
}

// NewFileProcessor creates a new file processor instance
func NewFileProcessor(logger *errors.Logger) *FileProcessor {
	return &FileProcessor{logger: logger}
}

// ReadFile reads content from a file with proper error handling
func (fp *FileProcessor) ReadFile(filename string) (string, error) {
	data, err := fp.readBytes(filename)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadDocument reads a file as a raw document, tagging the content type from
// the file extension. Unknown extensions get an empty content type and are
// resolved by header sniffing downstream.
func (fp *FileProcessor) ReadDocument(filename string) (types.RawDocument, error) {
	data, err := fp.readBytes(filename)
	if err != nil {
		return types.RawDocument{}, err
	}

	return types.RawDocument{
		Bytes:       data,
		ContentType: utils.ContentTypeForFile(filename),
		Filename:    filepath.Base(filename),
	}, nil
}

func (fp *FileProcessor) readBytes(filename string) ([]byte, error) {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewIOError(errors.ErrCodeFileNotFound,
				fmt.Sprintf("File not found: %s", filename), err)
		}
		return nil, errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Cannot read file: %s", filename), err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			// Log the error but don't override the main operation result
			if fp.logger != nil {
				fp.logger.Warn("Failed to close file", "filename", filename, "error", err)
			}
		}
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Failed to read file content: %s", filename), err)
	}

	return data, nil
}

// WriteFile writes content to a file with directory creation
func (fp *FileProcessor) WriteFile(filename, content string) error {
	dir := filepath.Dir(filename)
	if dir != "." {
		err := os.MkdirAll(dir, 0750)
		if err != nil {
			return errors.NewIOError("DIRECTORY_CREATE_FAILED",
				fmt.Sprintf("Cannot create directory: %s", dir), err)
		}
	}

	err := os.WriteFile(filename, []byte(content), 0600)
	if err != nil {
		return errors.NewIOError("FILE_WRITE_FAILED",
			fmt.Sprintf("Cannot write file: %s", filename), err)
	}

	return nil
}

// ValidateAndReadDocuments validates and reads multiple input files as raw
// documents.
func (fp *FileProcessor) ValidateAndReadDocuments(filenames ...string) ([]types.RawDocument, error) {
	docs := make([]types.RawDocument, len(filenames))

	for i, filename := range filenames {
		// Validate input file
		if err := utils.ValidateInputFile(filename); err != nil {
			return nil, errors.NewValidationError("INVALID_INPUT_FILE",
				fmt.Sprintf("Invalid file %s", filename), err)
		}

		// Warn about extensions the decoder has no handler for
		if !utils.IsTextFile(filename) && !utils.IsPDFFile(filename) {
			if fp.logger != nil {
				fp.logger.Warn("File type not recognized, treating content by header",
					"filename", filename)
			} else {
				fmt.Fprintf(os.Stderr, "Warning: %s is not a recognized file type\n", filename)
			}
		}

		// Read file content
		doc, err := fp.ReadDocument(filename)
		if err != nil {
			return nil, err // Error already wrapped by ReadDocument
		}

		docs[i] = doc
	}

	return docs, nil
}

// ValidateOutputFile validates output file path
func (fp *FileProcessor) ValidateOutputFile(filename string) error {
	if filename == "" {
		return nil // stdout is valid
	}

	if err := utils.ValidateOutputFile(filename); err != nil {
		return errors.NewValidationError("INVALID_OUTPUT_FILE",
			fmt.Sprintf("Invalid output file: %s", filename), err)
	}

	return nil
}

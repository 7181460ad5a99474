// Package errors provides the coded errors shared by docsearch strategies,
// backends and the CLI.
//
// Codes read ERR_<number>_<NAME>. The first digit of the number is the
// category: 1 config, 2 index storage, 4 validation, 5 internal.
package errors

// Category groups codes by what went wrong.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryIndex      Category = "INDEX"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity tells a caller whether it can keep going.
type Severity string

const (
	// SeverityFatal means the index cannot be used any more.
	SeverityFatal   Severity = "FATAL"
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

const (
	ErrCodeConfigInvalid = "ERR_102_CONFIG_INVALID"

	ErrCodeCorruptIndex        = "ERR_205_CORRUPT_INDEX"
	ErrCodeIndexWrite          = "ERR_207_INDEX_WRITE"
	ErrCodeIndexNotInitialized = "ERR_208_INDEX_NOT_INITIALIZED"

	ErrCodeInvalidQuery  = "ERR_403_INVALID_QUERY"
	ErrCodeInvalidFilter = "ERR_407_INVALID_FILTER"

	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
)

var categoryByDigit = map[byte]Category{
	'1': CategoryConfig,
	'2': CategoryIndex,
	'4': CategoryValidation,
	'5': CategoryInternal,
}

// categoryFromCode reads the category digit of "ERR_207_...". Malformed
// codes are internal.
func categoryFromCode(code string) Category {
	if len(code) < 7 || code[:4] != "ERR_" {
		return CategoryInternal
	}
	if c, ok := categoryByDigit[code[4]]; ok {
		return c
	}
	return CategoryInternal
}

func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex:
		return SeverityFatal
	case ErrCodeIndexNotInitialized:
		return SeverityWarning
	default:
		return SeverityError
	}
}

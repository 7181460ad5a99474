package strategy

import docerrors "github.com/Aman-CERP/docsearch/internal/errors"

// Sentinels for errors.Is. They match any error carrying the same code.
var (
	ErrIndexWrite          = docerrors.ErrIndexWrite
	ErrIndexNotInitialized = docerrors.ErrIndexNotInitialized
	ErrInvalidFilter       = docerrors.ErrInvalidFilter
	ErrInvalidQuery        = docerrors.ErrInvalidQuery
	ErrConfigInvalid       = docerrors.ErrConfigInvalid
)

func searchFailed(strategyName string, err error) error {
	return docerrors.New(docerrors.ErrCodeSearchFailed, "search failed", err).
		WithDetail("strategy", strategyName)
}

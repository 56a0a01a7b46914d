package muxcfg

import (
	"golang.org/x/text/language"

	"github.com/ebmlmux/gomkvmerge/internal/mkverrors"
)

// validateLanguage checks code against ISO-639-2 via golang.org/x/text's
// BCP-47 base-language parser, the same dependency jmylchreest-tvarr pulls
// in for its own locale handling (pkg/format). A code is accepted if it
// parses as a base language and round-trips to a non-empty ISO3 form.
func validateLanguage(code string) error {
	base, err := language.ParseBase(code)
	if err != nil {
		return &mkverrors.LanguageInvalidError{Code: code}
	}
	if base.ISO3() == "" {
		return &mkverrors.LanguageInvalidError{Code: code}
	}
	return nil
}

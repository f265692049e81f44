package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateStringNotEmpty(t *testing.T) {
	assert.NoError(t, ValidateStringNotEmpty("hello", "Field"))
	assert.ErrorIs(t, ValidateStringNotEmpty("", "Field"), ErrValidationFailed)
	assert.ErrorIs(t, ValidateStringNotEmpty("   ", "Field"), ErrValidationFailed)
}

func TestValidateStringMaxLength(t *testing.T) {
	assert.NoError(t, ValidateStringMaxLength("abc", 3, "Field"))
	assert.ErrorIs(t, ValidateStringMaxLength("abcd", 3, "Field"), ErrValidationFailed)
}

func TestValidateSymbol(t *testing.T) {
	assert.NoError(t, ValidateSymbol("AAPL"))
	assert.NoError(t, ValidateSymbol("BRK.B"))
	assert.NoError(t, ValidateSymbol(" tsla "))

	assert.Error(t, ValidateSymbol(""))
	assert.Error(t, ValidateSymbol("WAY-TOO-LONG-SYMBOL"))
	assert.Error(t, ValidateSymbol("AAPL;DROP"))
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "hello", SanitizeText("<b>hello</b>"))
	assert.NotContains(t, SanitizeText("<script>alert(1)</script>safe"), "script")
}

func TestStripUnprintable(t *testing.T) {
	assert.Equal(t, "ab\ncd", StripUnprintable("ab\ncd"))
	assert.Equal(t, "abc", StripUnprintable("a\x00b\x07c"))
}

package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeMarkdownV2(t *testing.T) {
	assert.Equal(t, `BTC\-USDT`, EscapeMarkdownV2("BTC-USDT"))
	assert.Equal(t, `\+2\.00%`, EscapeMarkdownV2("+2.00%"))
	assert.Equal(t, "plain", EscapeMarkdownV2("plain"))
}

func TestFormatPriceUS(t *testing.T) {
	assert.Equal(t, "50,000", FormatPriceUS(50000, false))
	assert.Equal(t, "3.14", FormatPriceUS(3.14, false))
	assert.Equal(t, "0.123457", FormatPriceUS(0.1234567, false))
	assert.Equal(t, "0.00000123", FormatPriceUS(0.00000123, false))
	assert.Equal(t, `50,000`, FormatPriceUS(50000, true))
	assert.Equal(t, `3\.14`, FormatPriceUS(3.14, true))
}

func TestFormatPercentage(t *testing.T) {
	assert.Equal(t, `\+2\.00%`, FormatPercentage(2))
	assert.Equal(t, `\-1\.25%`, FormatPercentage(-1.25))
}

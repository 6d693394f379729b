package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Symbol    string  `query:"symbol" default:"SPX" validate:"required,alpha"`
	Direction string  `query:"direction" default:"bullish" validate:"oneof=bullish bearish"`
	Price     float64 `query:"price" validate:"gte=0"`
}

func bind(t *testing.T, target string, req interface{}) interface{} {
	t.Helper()
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
	return ReadAndValidateRequest(c, req)
}

func TestReadAndValidateRequestDefaults(t *testing.T) {
	req := &sampleRequest{}
	require.Nil(t, bind(t, "/x", req))
	assert.Equal(t, "SPX", req.Symbol)
	assert.Equal(t, "bullish", req.Direction)
}

func TestReadAndValidateRequestReportsQueryNames(t *testing.T) {
	out := bind(t, "/x?direction=up&price=-1", &sampleRequest{})
	errs, ok := out.([]ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 2)

	assert.Equal(t, "direction", errs[0].Field)
	assert.Equal(t, "ERR_ONEOF", errs[0].Code)
	assert.Equal(t, "direction must be one of: bullish, bearish", errs[0].Message)
	assert.Equal(t, []string{"bullish", "bearish"}, errs[0].Params["options"])

	assert.Equal(t, "price", errs[1].Field)
	assert.Equal(t, "ERR_GTE", errs[1].Code)
}

func TestReadAndValidateRequestBindFailure(t *testing.T) {
	errs, ok := bind(t, "/x?price=abc", &sampleRequest{}).([]ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_BIND", errs[0].Code)
}

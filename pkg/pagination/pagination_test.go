package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		query string
		want  Params
	}{
		{"", Params{Page: 1, Limit: 10, Offset: 0}},
		{"page=3&limit=5", Params{Page: 3, Limit: 5, Offset: 10}},
		{"page=-1&limit=0", Params{Page: 1, Limit: 10, Offset: 0}},
		{"page=2&limit=1000", Params{Page: 2, Limit: 100, Offset: 100}},
		{"page=abc", Params{Page: 1, Limit: 10, Offset: 0}},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("GET", "/?"+tc.query, nil)
		assert.Equal(t, tc.want, Parse(c), tc.query)
	}
}

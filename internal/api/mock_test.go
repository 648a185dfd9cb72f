//go:generate mockgen -destination=prober_mock_test.go -package=api_test github.com/haveachin/minestat/internal/api Prober
package api_test

import (
	"testing"

	gomock "github.com/golang/mock/gomock"
	"github.com/haveachin/minestat/pkg/minestat"
)

func mockStatus(t *testing.T, json string) minestat.ServerStatus {
	t.Helper()
	s, err := minestat.ParseServerStatus([]byte(json))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func mockProber(ctrl *gomock.Controller) *MockProber {
	return NewMockProber(ctrl)
}

package shrink

import (
	"github.com/stretchr/testify/mock"
)

//go:generate mockery -name=Resource -inpkg -testonly

type MockResource struct {
	mock.Mock
}

func (m *MockResource) Count() int64 {
	return m.Called().Get(0).(int64)
}

func (m *MockResource) Shrink(nr int64) int64 {
	return m.Called(nr).Get(0).(int64)
}

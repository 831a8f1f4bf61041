package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"healthetl/internal/operations"
)

// SourceCSV is a valid snapshot. The third row has no medical condition and
// is removed by the complete-case rule, leaving four rows with an average
// stay of 4 days and a readmission rate of 50%.
const SourceCSV = `Age,Gender,Medical Condition,Date of Admission,Discharge Date,Readmission Status
25,male,flu,2024-01-01,2024-01-03,Yes
40,FEMALE,asthma,2024-01-01,2024-01-05,No
70,male,,2024-01-02,2024-01-04,Yes
10,female,cold,2024-01-01,2024-01-07,Yes
61,male,diabetes,2024-02-01,2024-02-05,No
`

// InvalidAgeCSV fails the age range rule on its second row
const InvalidAgeCSV = `Age,Gender,Medical Condition,Date of Admission,Discharge Date,Readmission Status
25,male,flu,2024-01-01,2024-01-03,Yes
130,female,asthma,2024-01-01,2024-01-05,No
`

// RunDate is the date used by pipeline tests
var RunDate = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

// WriteSource writes content to a temporary source file and returns its path
func WriteSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "healthcare_dataset.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// MissingSource returns a path that does not exist
func MissingSource(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "absent.csv")
}

// CreateSuccessfulStage returns a step that completes
func CreateSuccessfulStage(id string, deps ...string) *MockStage {
	return &MockStage{IDValue: id, NameValue: id, DependenciesValue: deps}
}

// CreateFailingStage returns a step that fails with err
func CreateFailingStage(id string, err error, deps ...string) *MockStage {
	return &MockStage{
		IDValue:           id,
		NameValue:         id,
		DependenciesValue: deps,
		ExecuteFunc: func(context.Context, *operations.OperationState) error {
			return err
		},
	}
}

// CreateSkippingStage returns a step that reports itself skipped
func CreateSkippingStage(id, reason string, deps ...string) *MockStage {
	return &MockStage{
		IDValue:           id,
		NameValue:         id,
		DependenciesValue: deps,
		ExecuteFunc: func(context.Context, *operations.OperationState) error {
			return operations.Skip(reason)
		},
	}
}

// CreateBlockingStage returns a step that blocks until release is closed or
// the context ends. started is closed once Execute is entered.
func CreateBlockingStage(id string, started chan<- struct{}, release <-chan struct{}) *MockStage {
	return &MockStage{
		IDValue:   id,
		NameValue: id,
		ExecuteFunc: func(ctx context.Context, _ *operations.OperationState) error {
			close(started)
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

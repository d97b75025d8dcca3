package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "Fit",
			kind:    "invalid input",
			err:     fmt.Errorf("test error"),
			wantMsg: "textclf: Fit: invalid input: test error",
		},
		{
			name:    "without original error",
			op:      "Predict",
			kind:    "not fitted",
			err:     nil,
			wantMsg: "textclf: Predict: not fitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースにテストファイルが含まれること
			formatted := fmt.Sprintf("%+v", err)
			if !strings.Contains(formatted, "errors_test.go") {
				t.Error("Expected stack trace to contain test file name")
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	tests := []struct {
		axis int
		want string
	}{
		{0, "textclf: Predict: dimension mismatch on axis 0 (rows). Expected 10, got 7"},
		{1, "textclf: Predict: dimension mismatch on axis 1 (features). Expected 10, got 7"},
	}
	for _, tt := range tests {
		err := NewDimensionError("Predict", 10, 7, tt.axis)
		if err.Error() != tt.want {
			t.Errorf("Error() = %v, want %v", err.Error(), tt.want)
		}
		var dimErr *DimensionError
		if !As(err, &dimErr) {
			t.Fatal("Error should be castable to *DimensionError")
		}
		if dimErr.Got != 7 {
			t.Errorf("Got = %d, want 7", dimErr.Got)
		}
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("TfidfVectorizer", "Transform")

	want := "textclf: TfidfVectorizer: this estimator is not fitted yet. Call Fit() before using Transform()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var notFittedErr *NotFittedError
	if !As(err, &notFittedErr) {
		t.Error("Error should be castable to *NotFittedError")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("split.test_size", "must be in (0, 1)", 1.5)
	want := "textclf: validation failed for parameter 'split.test_size': must be in (0, 1) (got: 1.5)"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
	var valErr *ValidationError
	if !As(err, &valErr) || valErr.ParamName != "split.test_size" {
		t.Error("Error should be castable to *ValidationError with the parameter name")
	}
}

func TestNewDatasetError(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewDatasetError("20newsgroups", "download failed", cause)

	if !strings.Contains(err.Error(), `dataset "20newsgroups": download failed: connection refused`) {
		t.Errorf("unexpected message: %v", err)
	}
	if !Is(err, cause) {
		t.Error("DatasetError should unwrap to its cause")
	}
	var dsErr *DatasetError
	if !As(err, &dsErr) {
		t.Error("Error should be castable to *DatasetError")
	}
}

func TestNewEmptyVocabularyError(t *testing.T) {
	err := NewEmptyVocabularyError(120, 5, 0.5)
	var vocabErr *EmptyVocabularyError
	if !As(err, &vocabErr) {
		t.Fatal("Error should be castable to *EmptyVocabularyError")
	}
	if vocabErr.RawTerms != 120 {
		t.Errorf("RawTerms = %d, want 120", vocabErr.RawTerms)
	}
	if !strings.Contains(err.Error(), "min_df=5, max_df=0.5") {
		t.Errorf("message should name the df bounds: %v", err)
	}
}

func TestNewConvergenceWarning(t *testing.T) {
	warn := NewConvergenceWarning("LogisticRegression", 100, "class 3")

	want := "LogisticRegression failed to converge after 100 iterations: class 3"
	if warn.Error() != want {
		t.Errorf("Error() = %v, want %v", warn.Error(), want)
	}
}

func TestWarnRoutesToZerologFunc(t *testing.T) {
	var got []error
	SetZerologWarnFunc(func(w error) { got = append(got, w) })
	defer SetZerologWarnFunc(nil)

	Warn(NewUndefinedMetricWarning("precision", "no predicted samples", 0))

	if len(got) != 1 {
		t.Fatalf("expected 1 routed warning, got %d", len(got))
	}
	var metricWarn *UndefinedMetricWarning
	if !As(got[0], &metricWarn) || metricWarn.Metric != "precision" {
		t.Errorf("unexpected warning: %v", got[0])
	}
}

func TestWarnFallsBackToHandler(t *testing.T) {
	var got error
	SetWarningHandler(func(w error) { got = w })
	defer SetWarningHandler(nil)

	Warn(NewDataConversionWarning("sparse", "dense", "PCA"))
	if got == nil || !strings.Contains(got.Error(), "sparse to dense") {
		t.Errorf("handler not called with warning, got %v", got)
	}
}

func TestWrapAndIs(t *testing.T) {
	wrapped := Wrap(ErrEmptyData, "in TrainTestSplit")

	if !Is(wrapped, ErrEmptyData) {
		t.Error("Expected Is(wrapped, ErrEmptyData) to be true")
	}
	if !strings.Contains(wrapped.Error(), "in TrainTestSplit") {
		t.Error("Expected wrapped error to contain wrapping message")
	}

	wrappedf := Wrapf(ErrEmptyData, "in %s: expected %d, got %d", "Predict", 10, 5)
	if !strings.Contains(wrappedf.Error(), "in Predict: expected 10, got 5") {
		t.Errorf("unexpected message: %v", wrappedf)
	}
}

// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// Errors carry stack traces through cockroachdb/errors and every structured type
// implements zerolog.LogObjectMarshaler so it can be logged as a nested object.
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		log.Printf("holdout-warning: %v\n", w)
	}
	// set by pkg/log to avoid an import cycle
	zerologWarnFunc func(warning error)
)

// SetWarningHandler replaces the fallback warning handler.
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn dispatches a non-fatal warning. zerolog is preferred when it has been wired.
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}
	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// ConvergenceWarning は最適化アルゴリズムが収束しなかった場合に発生する警告です。
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations. Consider increasing max_iter.", w.Algorithm, w.Iterations)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning は新しいConvergenceWarningを作成します。
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// DataConversionWarning is raised when a dataset provider silently re-encodes a column.
type DataConversionWarning struct {
	Source   string
	Column   string
	FromType string
	ToType   string
}

func (w *DataConversionWarning) Error() string {
	return fmt.Sprintf("%s: column %q converted from %s to %s", w.Source, w.Column, w.FromType, w.ToType)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *DataConversionWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("source", w.Source).
		Str("column", w.Column).
		Str("from_type", w.FromType).
		Str("to_type", w.ToType).
		Str("type", "DataConversionWarning")
}

// NewDataConversionWarning は新しいDataConversionWarningを作成します。
func NewDataConversionWarning(source, column, from, to string) *DataConversionWarning {
	return &DataConversionWarning{Source: source, Column: column, FromType: from, ToType: to}
}

// UndefinedMetricWarning は評価指標が計算できない場合に発生する警告です。
// 例えば、適合率(precision)を計算する際に、陽性クラスの予測が一つもなかった場合など。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// NewUndefinedMetricWarning は新しいUndefinedMetricWarningを作成します。
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// PersistenceWriteWarning reports a model artifact that could not be written.
// It is a warning value: training results stay valid when it is present.
type PersistenceWriteWarning struct {
	Backend string
	Target  string
	Err     error
}

func (w *PersistenceWriteWarning) Error() string {
	return fmt.Sprintf("could not persist model to %s %q: %v", w.Backend, w.Target, w.Err)
}

func (w *PersistenceWriteWarning) Unwrap() error {
	return w.Err
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *PersistenceWriteWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("backend", w.Backend).
		Str("target", w.Target).
		AnErr("cause", w.Err).
		Str("type", "PersistenceWriteWarning")
}

// NewPersistenceWriteWarning は新しいPersistenceWriteWarningを作成します。
func NewPersistenceWriteWarning(backend, target string, err error) *PersistenceWriteWarning {
	return &PersistenceWriteWarning{Backend: backend, Target: target, Err: err}
}

// ModelDriftWarning はモデルドリフトが検出された場合の警告です。
type ModelDriftWarning struct {
	Detector   string
	Source     string
	ErrorRate  float64
	Confidence float64
}

func (w *ModelDriftWarning) Error() string {
	return fmt.Sprintf("model drift detected by %s in %s: error rate=%.4f (confidence=%.4f)",
		w.Detector, w.Source, w.ErrorRate, w.Confidence)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *ModelDriftWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("detector", w.Detector).
		Str("source", w.Source).
		Float64("error_rate", w.ErrorRate).
		Float64("confidence", w.Confidence).
		Str("type", "ModelDriftWarning")
}

// NewModelDriftWarning は新しいModelDriftWarningを作成します。
func NewModelDriftWarning(detector, source string, errorRate, confidence float64) *ModelDriftWarning {
	return &ModelDriftWarning{Detector: detector, Source: source, ErrorRate: errorRate, Confidence: confidence}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で `Predict` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("holdout: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("holdout: %s: dimension mismatch on axis %d (%s). Expected %d, got %d",
		e.Op, e.Axis, e.axisName(), e.Expected, e.Got)
}

func (e *DimensionError) axisName() string {
	if e.Axis == 0 {
		return "rows"
	}
	return "features"
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", e.axisName()).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("holdout: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("holdout: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ModelError は機械学習モデルに関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("holdout: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("holdout: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// ===========================================================================
//
//	評価パイプラインのエラー型
//
// ===========================================================================

// DatasetNotFoundError is returned at configuration time when a dataset source is absent.
type DatasetNotFoundError struct {
	Source string
}

func (e *DatasetNotFoundError) Error() string {
	return fmt.Sprintf("holdout: dataset %q not found", e.Source)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DatasetNotFoundError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("source", e.Source).Str("type", "DatasetNotFoundError")
}

// NewDatasetNotFoundError は新しいDatasetNotFoundErrorを作成し、スタックトレースを付与します。
func NewDatasetNotFoundError(source string) error {
	return errors.WithStack(&DatasetNotFoundError{Source: source})
}

// DatasetLoadError wraps a failure to read or decode one dataset source.
type DatasetLoadError struct {
	Source string
	Err    error
}

func (e *DatasetLoadError) Error() string {
	return fmt.Sprintf("holdout: failed to load dataset %q: %v", e.Source, e.Err)
}

func (e *DatasetLoadError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DatasetLoadError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("source", e.Source).AnErr("cause", e.Err).Str("type", "DatasetLoadError")
}

// NewDatasetLoadError は新しいDatasetLoadErrorを作成し、スタックトレースを付与します。
func NewDatasetLoadError(source string, err error) error {
	return errors.WithStack(&DatasetLoadError{Source: source, Err: err})
}

// UnsupportedOperationError is returned when a model variant lacks a capability,
// e.g. calibrated probabilities.
type UnsupportedOperationError struct {
	ModelName string
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("holdout: %s does not support %s", e.ModelName, e.Operation)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *UnsupportedOperationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).Str("operation", e.Operation).Str("type", "UnsupportedOperationError")
}

// NewUnsupportedOperationError は新しいUnsupportedOperationErrorを作成し、スタックトレースを付与します。
func NewUnsupportedOperationError(modelName, operation string) error {
	return errors.WithStack(&UnsupportedOperationError{ModelName: modelName, Operation: operation})
}

// CorruptArtifactError is returned when a persisted model blob cannot be decoded.
type CorruptArtifactError struct {
	Reason string
	Err    error
}

func (e *CorruptArtifactError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("holdout: corrupt model artifact: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("holdout: corrupt model artifact: %s", e.Reason)
}

func (e *CorruptArtifactError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *CorruptArtifactError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("reason", e.Reason).AnErr("cause", e.Err).Str("type", "CorruptArtifactError")
}

// NewCorruptArtifactError は新しいCorruptArtifactErrorを作成し、スタックトレースを付与します。
func NewCorruptArtifactError(reason string, err error) error {
	return errors.WithStack(&CorruptArtifactError{Reason: reason, Err: err})
}

// LengthMismatchError is returned when predicted and actual label sequences differ in length.
type LengthMismatchError struct {
	Op        string
	Predicted int
	Actual    int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("holdout: %s: length mismatch: %d predicted labels, %d actual labels", e.Op, e.Predicted, e.Actual)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *LengthMismatchError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("predicted", e.Predicted).
		Int("actual", e.Actual).
		Str("type", "LengthMismatchError")
}

// NewLengthMismatchError は新しいLengthMismatchErrorを作成し、スタックトレースを付与します。
func NewLengthMismatchError(op string, predicted, actual int) error {
	return errors.WithStack(&LengthMismatchError{Op: op, Predicted: predicted, Actual: actual})
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrNonBinaryLabel is returned when a label other than 0 or 1 is encountered.
	ErrNonBinaryLabel = New("label must be 0 or 1")
)

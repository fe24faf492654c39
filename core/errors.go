package core

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 支持错误检查函数（IsXXX），并可通过 errors.Is 穿透 %w 包装
//
// 使用场景：
//   - Ranker 未初始化：NOT_INITIALIZED（前置条件错误，不属于单次请求失败）
//   - 模型输出形状不符：INVALID_OUTPUT
//   - Store 错误：NOT_FOUND, NOT_SUPPORTED
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "NOT_INITIALIZED"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "rank", "model"）
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is 按 Module + Code 判等，使 errors.Is 可以匹配预定义的哨兵错误。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Module == t.Module && e.Code == t.Code
}

// IsDomainError 检查错误链中是否有 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链中的第一个 DomainError，如果不存在则返回 nil
func GetDomainError(err error) *DomainError {
	for err != nil {
		if domainErr, ok := err.(*DomainError); ok {
			return domainErr
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil
		}
		err = u.Unwrap()
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound       = "NOT_FOUND"       // 资源不存在
	ErrorCodeNotSupported   = "NOT_SUPPORTED"   // 操作不支持
	ErrorCodeUnavailable    = "UNAVAILABLE"     // 服务不可用
	ErrorCodeInvalidInput   = "INVALID_INPUT"   // 输入无效
	ErrorCodeInternalError  = "INTERNAL_ERROR"  // 内部错误
	ErrorCodeNotInitialized = "NOT_INITIALIZED" // 前置条件：模型尚未完成初始化
	ErrorCodeInvalidOutput  = "INVALID_OUTPUT"  // 模型输出不符合约定
)

// 模块名称常量
const (
	ModuleStore   = "store"   // 存储模块
	ModuleFeature = "feature" // 特征模块
	ModuleRank    = "rank"    // 排序模块
	ModuleModel   = "model"   // 打分模型
	ModuleHistory = "history" // 历史行为
	ModuleService = "service" // 服务模块
)

var (
	// ErrNotInitialized 表示在打分模型完成初始化之前调用了排序。
	// 这是编程错误（前置条件失败），调用方应当快速失败，不能带着半初始化的模型继续。
	ErrNotInitialized = NewDomainError(ModuleRank, ErrorCodeNotInitialized, "phoenix ranker is not initialized")

	// ErrModelNotInitialized 表示模型适配器自身尚未初始化。
	ErrModelNotInitialized = NewDomainError(ModuleModel, ErrorCodeNotInitialized, "scoring model is not initialized")
)

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool {
	return hasCode(err, ErrorCodeNotFound)
}

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool {
	return hasCode(err, ErrorCodeNotSupported)
}

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool {
	return hasCode(err, ErrorCodeUnavailable)
}

// IsNotInitialized 检查错误是否为前置条件失败（Ranker 或模型未初始化）
func IsNotInitialized(err error) bool {
	return hasCode(err, ErrorCodeNotInitialized)
}

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

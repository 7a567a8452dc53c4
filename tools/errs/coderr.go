package errs

import (
	"strconv"
	"strings"
)

// CodeError 用于分类协议层结果（已存在/不存在/无权限），
// 回复层按 code 分支，不按字符串。
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{
		Code: code,
		Msg:  msg,
	}
}

func (e *CodeError) WithDetail(detail string) *CodeError {
	var d string
	if e.Detail == "" {
		d = detail
	} else {
		d = e.Detail + ", " + detail
	}
	return &CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: d,
	}
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)

	if e.Detail != "" {
		v = append(v, e.Detail)
	}

	return strings.Join(v, " ")
}

// Is 按 code 判等，errors.Is 可以跨 WithDetail 副本匹配哨兵值
func (e *CodeError) Is(err error) bool {
	ce, ok := err.(*CodeError)
	if !ok {
		return false
	}
	return e.Code == ce.Code
}

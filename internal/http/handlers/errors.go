package handlers

import (
	"errors"
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/mojiQAQ/petsphoto/internal/domain"
	"github.com/mojiQAQ/petsphoto/internal/generation"
	"github.com/mojiQAQ/petsphoto/internal/middleware"
)

// Message keys double as the English text.
const (
	msgUnauthorized        = "authentication required"
	msgNotFound            = "resource not found"
	msgImageNotFound       = "source image not found"
	msgJobNotFound         = "generation job not found"
	msgUserNotFound        = "user not found"
	msgInvalidStyle        = "style is not supported"
	msgInsufficientCredits = "not enough credits"
	msgBadRequest          = "invalid request payload"
	msgMissingFile         = "file field is required"
	msgFileTooLarge        = "file exceeds the upload limit"
	msgFileTooSmall        = "file is too small and may be corrupted"
	msgUnsupportedType     = "only JPG, PNG and WEBP images are supported"
	msgImageTooSmall       = "image must be at least 128x128 pixels"
	msgUndecodable         = "image file cannot be decoded"
	msgRateLimited         = "too many requests, slow down"
	msgInternal            = "internal server error"
)

func init() {
	zh := map[string]string{
		msgUnauthorized:        "需要登录",
		msgNotFound:            "资源不存在",
		msgImageNotFound:       "源图片不存在",
		msgJobNotFound:         "生成任务不存在",
		msgUserNotFound:        "用户不存在",
		msgInvalidStyle:        "不支持的风格ID",
		msgInsufficientCredits: "积分不足",
		msgBadRequest:          "请求参数无效",
		msgMissingFile:         "缺少 file 字段",
		msgFileTooLarge:        "文件大小超过限制",
		msgFileTooSmall:        "文件大小过小，可能已损坏",
		msgUnsupportedType:     "不支持的文件类型，仅支持 JPG、PNG 和 WEBP",
		msgImageTooSmall:       "图片尺寸过小，至少需要 128x128 像素",
		msgUndecodable:         "无效的图片文件",
		msgRateLimited:         "请求过于频繁，请稍后再试",
		msgInternal:            "服务器内部错误",
	}
	for key, text := range zh {
		_ = message.SetString(language.Chinese, key, text)
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func localize(r *http.Request, key string) string {
	tag := language.Make(middleware.LocaleFromContext(r.Context()))
	return message.NewPrinter(tag).Sprintf(key)
}

func (a *App) error(w http.ResponseWriter, r *http.Request, status int, code, key string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: localize(r, key)}})
}

// fail maps service errors onto the API error shape. notFoundKey names the
// missing resource for ErrNotFound.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error, notFoundKey string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, r, http.StatusNotFound, "not_found", notFoundKey)
	case errors.Is(err, domain.ErrInvalidStyle):
		a.error(w, r, http.StatusBadRequest, "invalid_style", msgInvalidStyle)
	case errors.Is(err, domain.ErrInsufficientCredits):
		a.error(w, r, http.StatusBadRequest, "insufficient_credits", msgInsufficientCredits)
	case errors.Is(err, generation.ErrUploadTooLarge):
		a.error(w, r, http.StatusRequestEntityTooLarge, "file_too_large", msgFileTooLarge)
	case errors.Is(err, generation.ErrUploadTooSmall):
		a.error(w, r, http.StatusBadRequest, "invalid_upload", msgFileTooSmall)
	case errors.Is(err, generation.ErrUnsupportedType):
		a.error(w, r, http.StatusBadRequest, "invalid_upload", msgUnsupportedType)
	case errors.Is(err, generation.ErrImageTooSmall):
		a.error(w, r, http.StatusBadRequest, "invalid_upload", msgImageTooSmall)
	case errors.Is(err, domain.ErrInvalidUpload):
		a.error(w, r, http.StatusBadRequest, "invalid_upload", msgUndecodable)
	default:
		a.Logger.Error().
			Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("handler: request failed")
		a.error(w, r, http.StatusInternalServerError, "internal", msgInternal)
	}
}

// Unauthorized is the AuthJWT error callback.
func (a *App) Unauthorized(w http.ResponseWriter, r *http.Request, reason string) {
	a.Logger.Debug().Str("reason", reason).Str("path", r.URL.Path).Msg("handler: unauthorized")
	a.error(w, r, http.StatusUnauthorized, "unauthorized", msgUnauthorized)
}

// TooManyRequests is the rate limiter callback.
func (a *App) TooManyRequests(w http.ResponseWriter, r *http.Request) {
	a.error(w, r, http.StatusTooManyRequests, "rate_limited", msgRateLimited)
}

package util

import (
	"net/http"
	"strings"
)

// SniffImageMIME определяет MIME картинки по сигнатуре. Пустая строка — формат не поддерживается.
func SniffImageMIME(b []byte) string {
	// JPEG: FF D8
	if len(b) >= 2 && b[0] == 0xFF && b[1] == 0xD8 {
		return "image/jpeg"
	}
	// PNG
	if len(b) >= 8 &&
		b[0] == 0x89 && b[1] == 0x50 && b[2] == 0x4E && b[3] == 0x47 &&
		b[4] == 0x0D && b[5] == 0x0A && b[6] == 0x1A && b[7] == 0x0A {
		return "image/png"
	}
	// GIF87a / GIF89a
	if len(b) >= 6 && string(b[:4]) == "GIF8" && (b[4] == '7' || b[4] == '9') && b[5] == 'a' {
		return "image/gif"
	}
	// WEBP: RIFF....WEBP
	if len(b) >= 12 && string(b[:4]) == "RIFF" && string(b[8:12]) == "WEBP" {
		return "image/webp"
	}
	return ""
}

// PickImageMIME берём MIME по байтам, затем заявленный клиентом, если он image/*.
func PickImageMIME(declared string, data []byte) string {
	if m := SniffImageMIME(data); m != "" {
		return m
	}
	d := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(d, ';'); i >= 0 {
		d = strings.TrimSpace(d[:i])
	}
	switch d {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		if d == "image/jpg" {
			return "image/jpeg"
		}
		// заявленный тип принимаем только если байты тоже похожи на картинку
		if strings.HasPrefix(http.DetectContentType(data), "image/") {
			return d
		}
	}
	return ""
}

// ExtForMIME — расширение файла для архива.
func ExtForMIME(mime string) string {
	switch mime {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return "bin"
	}
}

func MakeDataURL(mime, b64 string) string {
	return "data:" + mime + ";base64," + b64
}

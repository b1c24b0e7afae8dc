package port

import "context"

// ObjectStorage определяет интерфейс объектного хранилища для архивов.
type ObjectStorage interface {
	// PutObject загружает объект и возвращает его URL.
	PutObject(ctx context.Context, key, contentType string, body []byte) (string, error)
}

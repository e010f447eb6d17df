package directory

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// BookInfo описывает книгу в справочном сервисе.
type BookInfo struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	ISBN            string `json:"isbn"`
	Category        string `json:"category"`
	TotalCopies     int    `json:"totalCopies"`
	AvailableCopies int    `json:"availableCopies"`
}

// Available сообщает, остались ли свободные экземпляры.
func (b *BookInfo) Available() bool {
	return b.AvailableCopies > 0
}

// BookClient инкапсулирует HTTP-взаимодействие со справочным сервисом книг.
type BookClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewBookClient создаёт клиент сервиса книг по указанному адресу.
func NewBookClient(baseURL string) *BookClient {
	return &BookClient{
		baseURL:    normalizeBaseURL(baseURL),
		httpClient: newHTTPClient(),
	}
}

// GetBook запрашивает данные книги по идентификатору.
func (c *BookClient) GetBook(ctx context.Context, bookID int64) (*BookInfo, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("book service client not configured")
	}

	url := fmt.Sprintf("%s/api/books/%d", c.baseURL, bookID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("book service returned status %d for book %d", resp.StatusCode, bookID)
	}

	var book BookInfo
	if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &book, nil
}

// IsAvailable запрашивает у сервиса книг, есть ли свободные экземпляры.
func (c *BookClient) IsAvailable(ctx context.Context, bookID int64) (bool, error) {
	if c == nil || c.baseURL == "" {
		return false, fmt.Errorf("book service client not configured")
	}

	url := fmt.Sprintf("%s/api/books/%d/available", c.baseURL, bookID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("book service returned status %d for book %d", resp.StatusCode, bookID)
	}

	var available bool
	if err := json.NewDecoder(resp.Body).Decode(&available); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}

	return available, nil
}

// AdjustAvailability изменяет число доступных экземпляров книги на delta.
// Отрицательное значение резервирует экземпляр, положительное возвращает его в фонд.
func (c *BookClient) AdjustAvailability(ctx context.Context, bookID int64, delta int) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("book service client not configured")
	}

	url := fmt.Sprintf("%s/api/books/%d/availability?copies=%s", c.baseURL, bookID, strconv.Itoa(delta))

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("book service returned status %d for book %d", resp.StatusCode, bookID)
	}

	return nil
}

package directory

import (
	"context"
	"fmt"
	"net/http"
)

// Типы членства читателей.
const (
	MembershipBasic   = "BASIC"
	MembershipPremium = "PREMIUM"
	MembershipStudent = "STUDENT"
)

// UserInfo описывает читателя в справочном сервисе.
type UserInfo struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	MembershipType string `json:"membershipType"`
	IsActive       bool   `json:"isActive"`
}

// MaxBooksAllowed возвращает лимит одновременных выдач для типа членства.
// Неизвестный тип не даёт права брать книги.
func (u *UserInfo) MaxBooksAllowed() int {
	switch u.MembershipType {
	case MembershipBasic:
		return 3
	case MembershipPremium:
		return 10
	case MembershipStudent:
		return 5
	default:
		return 0
	}
}

// LoanDurationDays возвращает срок выдачи в днях для типа членства.
func (u *UserInfo) LoanDurationDays() int {
	switch u.MembershipType {
	case MembershipBasic:
		return 14
	case MembershipPremium:
		return 30
	case MembershipStudent:
		return 21
	default:
		return 14
	}
}

// UserClient инкапсулирует HTTP-взаимодействие со справочным сервисом читателей.
type UserClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewUserClient создаёт клиент сервиса читателей по указанному адресу.
func NewUserClient(baseURL string) *UserClient {
	return &UserClient{
		baseURL:    normalizeBaseURL(baseURL),
		httpClient: newHTTPClient(),
	}
}

// GetUser запрашивает данные читателя по идентификатору.
func (c *UserClient) GetUser(ctx context.Context, userID int64) (*UserInfo, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("user service client not configured")
	}

	url := fmt.Sprintf("%s/api/users/%d", c.baseURL, userID)

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
		return nil, fmt.Errorf("user service returned status %d for user %d", resp.StatusCode, userID)
	}

	var user UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &user, nil
}

// ValidateUser запрашивает у сервиса читателей, вправе ли читатель брать книги.
func (c *UserClient) ValidateUser(ctx context.Context, userID int64) (bool, error) {
	if c == nil || c.baseURL == "" {
		return false, fmt.Errorf("user service client not configured")
	}

	url := fmt.Sprintf("%s/api/users/%d/validate", c.baseURL, userID)

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
		return false, fmt.Errorf("user service returned status %d for user %d", resp.StatusCode, userID)
	}

	var valid bool
	if err := json.NewDecoder(resp.Body).Decode(&valid); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}

	return valid, nil
}

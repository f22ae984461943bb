package e2e

import (
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// E2ETestSuite drives the running server over HTTP through Playwright's request API.
type E2ETestSuite struct {
	suite.Suite
	pw  *playwright.Playwright
	api playwright.APIRequestContext
}

// SetupSuite runs once before all tests
func (suite *E2ETestSuite) SetupSuite() {
	pw, err := playwright.Run()
	require.NoError(suite.T(), err, "could not launch playwright")
	suite.pw = pw

	api, err := pw.Request.NewContext(playwright.APIRequestNewContextOptions{
		BaseURL: playwright.String(appURL),
	})
	require.NoError(suite.T(), err, "could not create request context")
	suite.api = api
}

// TearDownSuite runs once after all tests
func (suite *E2ETestSuite) TearDownSuite() {
	if suite.api != nil {
		suite.api.Dispose()
	}
	if suite.pw != nil {
		suite.pw.Stop()
	}
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func (suite *E2ETestSuite) login(email, password string) string {
	resp, err := suite.api.Post("/login", playwright.APIRequestContextPostOptions{
		Data: map[string]string{"email": email, "password": password},
	})
	require.NoError(suite.T(), err, "login request failed")
	require.Equal(suite.T(), http.StatusOK, resp.Status(), "login rejected")

	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(suite.T(), resp.JSON(&body))
	require.Equal(suite.T(), "bearer", body.TokenType)
	require.NotEmpty(suite.T(), body.AccessToken)
	return body.AccessToken
}

func (suite *E2ETestSuite) register(email, password string) {
	resp, err := suite.api.Post("/register", playwright.APIRequestContextPostOptions{
		Data: map[string]string{"email": email, "password": password},
	})
	require.NoError(suite.T(), err, "register request failed")
	require.Equal(suite.T(), http.StatusCreated, resp.Status())
}

func (suite *E2ETestSuite) TestAdminCanLogIn() {
	token := suite.login(adminEmail, adminPassword)

	resp, err := suite.api.Get("/expenses", playwright.APIRequestContextGetOptions{Headers: bearer(token)})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), http.StatusOK, resp.Status())
}

func (suite *E2ETestSuite) TestCompleteUserFlow() {
	suite.register("flow@example.com", "flow-password")
	token := suite.login("flow@example.com", "flow-password")

	for _, e := range []map[string]any{
		{"title": "Lunch Test", "amount": 12.5, "category": "food", "merchant": "Cafe"},
		{"title": "Bus", "amount": 2.5, "category": "transport"},
	} {
		resp, err := suite.api.Post("/expenses", playwright.APIRequestContextPostOptions{Data: e, Headers: bearer(token)})
		require.NoError(suite.T(), err, "failed to create expense")
		require.Equal(suite.T(), http.StatusCreated, resp.Status())
	}

	resp, err := suite.api.Get("/expenses?category=food", playwright.APIRequestContextGetOptions{Headers: bearer(token)})
	require.NoError(suite.T(), err)
	var listed []struct {
		ID     int64   `json:"id"`
		Title  string  `json:"title"`
		Amount float64 `json:"amount"`
	}
	require.NoError(suite.T(), resp.JSON(&listed))
	require.Len(suite.T(), listed, 1)
	require.Equal(suite.T(), "Lunch Test", listed[0].Title)
	lunch := "/expenses/" + strconv.FormatInt(listed[0].ID, 10)

	resp, err = suite.api.Put(lunch, playwright.APIRequestContextPutOptions{
		Data:    map[string]any{"amount": 15},
		Headers: bearer(token),
	})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), http.StatusOK, resp.Status())

	resp, err = suite.api.Get("/expenses/stats", playwright.APIRequestContextGetOptions{Headers: bearer(token)})
	require.NoError(suite.T(), err)
	var stats struct {
		Total   float64 `json:"total_spending"`
		Average float64 `json:"average_spending"`
	}
	require.NoError(suite.T(), resp.JSON(&stats))
	require.Equal(suite.T(), 17.5, stats.Total)
	require.Equal(suite.T(), 8.75, stats.Average)

	resp, err = suite.api.Get("/expenses/export", playwright.APIRequestContextGetOptions{Headers: bearer(token)})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), http.StatusOK, resp.Status())
	text, err := resp.Text()
	require.NoError(suite.T(), err)
	lines := strings.Split(strings.TrimSpace(text), "\n")
	require.Len(suite.T(), lines, 3)
	require.Equal(suite.T(), "Title,Amount,Category,Merchant,Date", strings.TrimSpace(lines[0]))

	resp, err = suite.api.Delete(lunch, playwright.APIRequestContextDeleteOptions{Headers: bearer(token)})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), http.StatusOK, resp.Status())

	resp, err = suite.api.Get(lunch, playwright.APIRequestContextGetOptions{Headers: bearer(token)})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), http.StatusNotFound, resp.Status())
}

func (suite *E2ETestSuite) TestOtherUsersExpensesAreHidden() {
	suite.register("owner@example.com", "owner-password")
	suite.register("intruder@example.com", "intruder-password")
	owner := suite.login("owner@example.com", "owner-password")
	intruder := suite.login("intruder@example.com", "intruder-password")

	resp, err := suite.api.Post("/expenses", playwright.APIRequestContextPostOptions{
		Data:    map[string]any{"title": "Rent", "amount": 900},
		Headers: bearer(owner),
	})
	require.NoError(suite.T(), err)
	var created struct {
		Expense struct {
			ID int64 `json:"id"`
		} `json:"expense"`
	}
	require.NoError(suite.T(), resp.JSON(&created))
	rent := "/expenses/" + strconv.FormatInt(created.Expense.ID, 10)

	resp, err = suite.api.Delete(rent, playwright.APIRequestContextDeleteOptions{Headers: bearer(intruder)})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), http.StatusNotFound, resp.Status())

	resp, err = suite.api.Get(rent, playwright.APIRequestContextGetOptions{Headers: bearer(owner)})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), http.StatusOK, resp.Status())
}

func (suite *E2ETestSuite) TestRequestsWithoutTokenAreRejected() {
	resp, err := suite.api.Get("/expenses")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), http.StatusUnauthorized, resp.Status())
	require.Equal(suite.T(), "Bearer", resp.Headers()["www-authenticate"])
}

// TestE2ESuite runs the e2e test suite
func TestE2ESuite(t *testing.T) {
	suite.Run(t, new(E2ETestSuite))
}

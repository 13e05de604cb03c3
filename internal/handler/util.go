package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// GetHeader looks a header up case-insensitively. API Gateway forwards header
// names exactly as the client sent them.
func GetHeader(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	for k, v := range req.MultiValueHeaders {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// GetCookie returns the value of the named cookie from the Cookie header.
func GetCookie(req events.APIGatewayProxyRequest, name string) string {
	cookies := GetHeader(req, "Cookie")
	if cookies == "" {
		return ""
	}
	for _, part := range strings.Split(cookies, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && key == name {
			return value
		}
	}
	return ""
}

// bearerToken returns the token from "Authorization: Bearer <token>".
func bearerToken(req events.APIGatewayProxyRequest) string {
	value, ok := strings.CutPrefix(GetHeader(req, "Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

// CookiePolicy decides the attributes of cookies set by the API.
type CookiePolicy struct {
	// SameSite is "None" when the frontend and API sit on different origins.
	SameSite string
	Secure   bool
}

// NewCookiePolicy returns Lax cookies for local development and None for deployments.
func NewCookiePolicy(devMode bool) CookiePolicy {
	if devMode {
		return CookiePolicy{SameSite: "Lax", Secure: false}
	}
	return CookiePolicy{SameSite: "None", Secure: true}
}

// Cookie renders a Set-Cookie value. maxAge <= 0 expires the cookie.
func (p CookiePolicy) Cookie(name, value string, maxAgeSeconds int) string {
	if maxAgeSeconds < 0 {
		maxAgeSeconds = 0
	}
	cookie := fmt.Sprintf("%s=%s; HttpOnly; Path=/; Max-Age=%d; SameSite=%s", name, value, maxAgeSeconds, p.SameSite)
	if p.Secure {
		cookie += "; Secure"
	}
	return cookie
}

func jsonResponse(status int, body any) events.APIGatewayProxyResponse {
	encoded, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: `{"error":"encode response"}`}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(encoded),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func errorResponse(status int, message string) events.APIGatewayProxyResponse {
	return jsonResponse(status, errorBody{Error: message})
}

func redirect(location string, cookies ...string) events.APIGatewayProxyResponse {
	resp := events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": location,
		},
	}
	if len(cookies) > 0 {
		resp.MultiValueHeaders = map[string][]string{"Set-Cookie": cookies}
	}
	return resp
}

func withCookies(resp events.APIGatewayProxyResponse, cookies ...string) events.APIGatewayProxyResponse {
	if len(cookies) == 0 {
		return resp
	}
	if resp.MultiValueHeaders == nil {
		resp.MultiValueHeaders = make(map[string][]string)
	}
	resp.MultiValueHeaders["Set-Cookie"] = append(resp.MultiValueHeaders["Set-Cookie"], cookies...)
	return resp
}

// statusForKind maps a workflow failure kind to an HTTP status.
func statusForKind(kind string) int {
	switch kind {
	case "":
		return http.StatusOK
	case "validation":
		return http.StatusBadRequest
	case "authentication":
		return http.StatusUnauthorized
	case "configuration":
		return http.StatusInternalServerError
	case "transcode_timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

package wechat

// tokenResponse is the JSON body of the access-token exchange endpoint.
// On failure the platform returns errcode/errmsg instead of a token.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
}

// pushRequest is the customer-service message push body. The text payload key
// matches MsgType, so only "text" is modeled here.
type pushRequest struct {
	ToUser  string      `json:"touser"`
	MsgType string      `json:"msgtype"`
	Text    textPayload `json:"text"`
}

type textPayload struct {
	Content string `json:"content"`
}

// pushResponse is the platform's reply to a push. errcode 0 means delivered.
type pushResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Platform error codes that mean the access token must be refreshed.
const (
	errCodeInvalidCredential = 40001
	errCodeTokenExpired      = 42001
)

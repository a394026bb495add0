package respond

import "regexp"

var (
	accessTokenPattern = regexp.MustCompile(`(?i)(api_access_token["']?\s*[:=]\s*["']?)[^\s"'&,}]+`)
	bearerPattern      = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9\-._~+/]+=*`)
	dsnPasswordPattern = regexp.MustCompile(`://([^:/@\s]+):([^@\s]+)@`)
	queryTokenPattern  = regexp.MustCompile(`(?i)([?&](?:token|password|api_key)=)[^&\s]+`)
)

// SanitizeError masks gateway tokens, bearer credentials and connection
// string passwords in err's message.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	msg = accessTokenPattern.ReplaceAllString(msg, "${1}****")
	msg = bearerPattern.ReplaceAllString(msg, "${1}****")
	msg = dsnPasswordPattern.ReplaceAllString(msg, "://$1:****@")
	msg = queryTokenPattern.ReplaceAllString(msg, "${1}****")
	return msg
}

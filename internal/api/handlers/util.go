package handlers

import "time"

const rfc3339 = time.RFC3339

func nowRFC3339() string {
	return time.Now().UTC().Format(rfc3339)
}

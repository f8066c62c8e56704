package helpers

import (
	"net/url"
	"path"
)

func UrlJoin(baseUrl string, elem ...string) (string, error) {
	u, err := url.Parse(baseUrl)
	if err != nil {
		return "", err
	}

	if len(elem) > 0 {
		elem = append([]string{u.Path}, elem...)
		u.Path = path.Join(elem...)
	}

	return u.String(), nil
}

func IsValidHttpUrl(rawUrl string) bool {
	u, err := url.ParseRequestURI(rawUrl)
	if err != nil {
		return false
	}

	parsedUrl, err := url.Parse(rawUrl)
	if err != nil || parsedUrl.Scheme == "" || parsedUrl.Host == "" {
		return false
	}

	return u.Scheme == "http" || u.Scheme == "https"
}

package app

import "github.com/pkg/browser"

// Opener performs the outbound "open registration page" action.
type Opener interface {
	Open(url string) error
}

// BrowserOpener opens URLs in the system web browser.
type BrowserOpener struct{}

func (BrowserOpener) Open(url string) error {
	return browser.OpenURL(url)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(url string) error

func (f OpenerFunc) Open(url string) error { return f(url) }

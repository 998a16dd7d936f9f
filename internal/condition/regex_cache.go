package condition

import (
	"fmt"
	"regexp"
	"sync"
)

const (
	regexCacheSize   = 256
	maxPatternLength = 500
)

var regexCache = struct {
	mu sync.RWMutex
	m  map[string]*regexp.Regexp
}{m: make(map[string]*regexp.Regexp)}

// compileRegex returns a cached compiled regex or compiles and caches a new one.
func compileRegex(pattern string) (*regexp.Regexp, error) {
	regexCache.mu.RLock()
	re, ok := regexCache.m[pattern]
	regexCache.mu.RUnlock()
	if ok {
		return re, nil
	}

	if len(pattern) > maxPatternLength {
		return nil, fmt.Errorf("regex pattern too long (max %d chars): %d chars", maxPatternLength, len(pattern))
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	regexCache.mu.Lock()
	if len(regexCache.m) >= regexCacheSize {
		regexCache.m = make(map[string]*regexp.Regexp, regexCacheSize)
	}
	regexCache.m[pattern] = re
	regexCache.mu.Unlock()
	return re, nil
}

package identity

import (
	"bufio"
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/internquest/backend/core"
)

var (
	// password policy
	pwdMinLen      = 8
	pwdMinLenText  = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)
	pwdNoSpaceText = "password must not contain whitespace"
	pwdNotAllNum   = "password cannot be entirely numeric"
	pwdCplxText    = "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"
	specialRegex   = regexp.MustCompile("[^A-Za-z0-9]")
	pwdMaxSim      = .7
	pwdAttrSimText = "password cannot be similar to user attributes"
	pwdCommonText  = "password is too common"

	commonPasswords = loadCommonPasswords(commonPasswordsTxt)
)

//go:embed common-passwords.txt
var commonPasswordsTxt string

func loadCommonPasswords(txt string) []string {
	pwds := make([]string, 0, 300)
	scanner := bufio.NewScanner(strings.NewReader(txt))
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			pwds = append(pwds, strings.ToLower(pwd))
		}
	}
	sort.Strings(pwds)
	return pwds
}

// CheckPassword applies the password policy to pwd:
// - minLen: 8
// - no whitespace
// - no all numeric
// - complexity: 1 upper, 1 lower, 1 digit, 1 special
// - no user attrs similarity
// - no common password
func CheckPassword(pwd string, userAttrs ...string) error {
	reportErr := func(text string) error {
		return core.NewValidationError(nil, core.FieldError{Field: "password", Error: text})
	}

	var (
		digitCount                 int
		hasUpper, hasLower, hasDig bool
	)

	runes := []rune(pwd)
	if len(runes) < pwdMinLen {
		return reportErr(pwdMinLenText)
	}
	for _, char := range runes {
		if unicode.IsSpace(char) {
			return reportErr(pwdNoSpaceText)
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
		if !hasUpper && unicode.IsUpper(char) {
			hasUpper = true
		}
		if !hasLower && unicode.IsLower(char) {
			hasLower = true
		}
	}

	if digitCount == len(runes) {
		return reportErr(pwdNotAllNum)
	}

	hasDig = digitCount > 0
	if !(hasUpper && hasLower && hasDig && specialRegex.MatchString(pwd)) {
		return reportErr(pwdCplxText)
	}

	for _, attr := range userAttrs {
		attr = strings.ToLower(strings.TrimSpace(attr))
		if attr == "" {
			continue
		}
		ratio := difflib.NewMatcher(strings.Split(strings.ToLower(pwd), ""), strings.Split(attr, "")).QuickRatio()
		if ratio >= pwdMaxSim {
			return reportErr(pwdAttrSimText)
		}
	}

	lpwd := strings.ToLower(pwd)
	if idx := sort.SearchStrings(commonPasswords, lpwd); idx < len(commonPasswords) && commonPasswords[idx] == lpwd {
		return reportErr(pwdCommonText)
	}
	return nil
}

// redact маскирует чувствительные данные перед записью в логи:
// e-mail и секреты никогда не попадают в журнал в открытом виде.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Email маскирует e-mail: первые две руны локальной части + "***", домен как есть.
// Строка без ровно одного '@' маскируется целиком.
//
//	"foobar@example.com" -> "fo***@example.com"
//	"ab@ex.com"          -> "***@ex.com"
//	"no-at"              -> "***"
func Email(s string) string {
	if strings.Count(s, "@") != 1 {
		return "***"
	}

	i := strings.IndexByte(s, '@')
	local, domain := s[:i], s[i+1:]

	if lr := []rune(local); len(lr) > 2 {
		local = string(lr[:2]) + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

// Fingerprint возвращает короткий отпечаток секрета (8 hex-символов sha256),
// по которому можно сопоставить записи логов, не раскрывая сам секрет.
// Для пустой строки возвращает "".
func Fingerprint(secret string) string {
	if secret == "" {
		return ""
	}

	sum := sha256.Sum256([]byte(secret))

	return hex.EncodeToString(sum[:4])
}

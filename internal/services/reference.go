package services

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	transferPrefix = "TRF"
	openingPrefix  = "OPN"
)

// newReference builds PREFIX-<48 random bits>-<unix millis, base36>.
func newReference(prefix string, now time.Time) string {
	id := uuid.New()
	random := strings.ToUpper(hex.EncodeToString(id[:6]))
	stamp := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return prefix + "-" + random + "-" + stamp
}

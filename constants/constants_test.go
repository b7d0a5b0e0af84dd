package constants

import (
	"regexp"
	"strings"
	"testing"
)

func TestTimeFormat(t *testing.T) {
	// Check that a time zone component exists in the global time format.
	re := regexp.MustCompile("^.*0700$")
	if !re.MatchString(TimeFormatYearSecondsTZ) {
		t.Fatal("Unexpected time format - missing time zone component.")
	}
	// Check that the global regexp can match constant TimeFormatYearSeconds.
	re = regexp.MustCompile(TimeFormatYearSecondsRegex)
	if !re.MatchString(TimeFormatYearSeconds) {
		t.Fatal("Mismatch between TimeFormatYearSeconds and regexp in constant TimeFormatYearSecondsRegex.")
	}
}

func TestSegmentThresholdsDescend(t *testing.T) {
	if !(CustomerSegmentThresholdVip > CustomerSegmentThresholdHigh && CustomerSegmentThresholdHigh > CustomerSegmentThresholdMedium) {
		t.Fatal("customer segment thresholds must be strictly descending")
	}
}

func TestNamespacesAreUpperCase(t *testing.T) {
	for _, ns := range []string{WarehouseNamespaceStaging, WarehouseNamespaceProcessed, WarehouseNamespaceAnalytics, WarehouseNamespaceMetadata} {
		if ns != strings.ToUpper(ns) {
			t.Fatalf("expected upper case namespace; got: %v", ns)
		}
	}
}

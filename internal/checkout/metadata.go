package checkout

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/verdantclimate/verdant-backend/internal/pricing"
	"github.com/verdantclimate/verdant-backend/pkg/enums"
)

const cartChunkPrefix = "cart_"

// metadataBuilder flattens buyer and cart data into the gateway's string map,
// respecting its per-value length and total key limits.
type metadataBuilder struct {
	maxValueLen int
	maxKeys     int
}

func newMetadataBuilder(maxValueLen, maxKeys int) metadataBuilder {
	if maxValueLen <= 0 {
		maxValueLen = 490
	}
	if maxKeys <= 0 {
		maxKeys = 50
	}
	return metadataBuilder{maxValueLen: maxValueLen, maxKeys: maxKeys}
}

// Build produces the session metadata: lower-cased buyer fields, leaderboard
// opt-in markers, aggregate order figures, the emailed flag seeded to "0",
// and the cart snapshot split into cart_N chunks so verification can recover
// the composition even if the local snapshot row is lost.
func (b metadataBuilder) Build(in BuildInput) (map[string]string, error) {
	meta := map[string]string{
		"emailed": "0",
		"group":   string(primaryKind(in.Lines)),
		"tonnes":  strconv.Itoa(totalTonnes(in.Lines)),
		"quality": string(primaryTier(in.Lines)),
	}
	if in.ContactName != "" {
		meta["contactname"] = b.truncate(in.ContactName)
	}
	if in.ContactEmail != "" {
		meta["contactemail"] = b.truncate(strings.ToLower(in.ContactEmail))
	}
	if in.LeaderboardConsent {
		meta["leader_consent"] = "yes"
		if in.LeaderboardName != "" {
			meta["leader_name"] = b.truncate(in.LeaderboardName)
		}
		if in.ContactEmail != "" {
			meta["leader_email"] = b.truncate(strings.ToLower(in.ContactEmail))
		}
	}

	if err := b.appendCartChunks(meta, in.Lines); err != nil {
		return nil, err
	}
	if len(meta) > b.maxKeys {
		return nil, fmt.Errorf("metadata would need %d keys, gateway allows %d", len(meta), b.maxKeys)
	}
	return meta, nil
}

func (b metadataBuilder) appendCartChunks(meta map[string]string, lines []pricing.CartLine) error {
	if len(lines) == 0 {
		return nil
	}
	payload, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encoding cart for metadata: %w", err)
	}
	text := string(payload)
	for i := 0; len(text) > 0; i++ {
		chunk := text
		if len(chunk) > b.maxValueLen {
			chunk = chunk[:b.maxValueLen]
		}
		meta[fmt.Sprintf("%s%d", cartChunkPrefix, i)] = chunk
		text = text[len(chunk):]
	}
	return nil
}

func (b metadataBuilder) truncate(value string) string {
	if len(value) <= b.maxValueLen {
		return value
	}
	return value[:b.maxValueLen]
}

// DecodeCartMetadata reassembles the cart_N chunks back into cart lines.
// Returns ok=false when no chunks are present or the payload is corrupt.
func DecodeCartMetadata(meta map[string]string) ([]pricing.CartLine, bool) {
	if len(meta) == 0 {
		return nil, false
	}
	type chunk struct {
		index int
		value string
	}
	var chunks []chunk
	for key, value := range meta {
		if !strings.HasPrefix(key, cartChunkPrefix) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(key, cartChunkPrefix))
		if err != nil {
			continue
		}
		chunks = append(chunks, chunk{index: idx, value: value})
	}
	if len(chunks) == 0 {
		return nil, false
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].index < chunks[j].index })

	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.value)
	}
	var lines []pricing.CartLine
	if err := json.Unmarshal([]byte(sb.String()), &lines); err != nil {
		return nil, false
	}
	return lines, true
}

func primaryKind(lines []pricing.CartLine) enums.PurchaseKind {
	for _, line := range lines {
		if line.Kind.IsValid() {
			return line.Kind
		}
	}
	return enums.PurchaseIndividual
}

func primaryTier(lines []pricing.CartLine) enums.QualityTier {
	for _, line := range lines {
		if line.Kind != enums.PurchaseMarketplace {
			return enums.NormalizeQualityTier(line.QualityTier)
		}
	}
	return enums.QualityStandard
}

func totalTonnes(lines []pricing.CartLine) int {
	total := 0
	for _, line := range lines {
		if line.QuantityTonnes > 0 {
			total += line.QuantityTonnes
		}
	}
	return total
}

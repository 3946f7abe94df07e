package portfolio

import (
	"encoding/json"
	"strings"

	"github.com/aristath/permanent/internal/domain"
)

// Optional is a JSON field that tells apart absent, null and a value
type Optional[T any] struct {
	Set   bool
	Value *T
}

// UnmarshalJSON records that the field was present
func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// AssetPatch is a partial asset update. Absent fields are left alone;
// fields that do not apply to the asset's kind are ignored.
type AssetPatch struct {
	AssetID        string            `json:"asset_id"`
	Name           Optional[string]  `json:"name"`
	Code           Optional[string]  `json:"code"`
	Quantity       Optional[float64] `json:"quantity"`
	Amount         Optional[float64] `json:"amount"`
	Chain          Optional[string]  `json:"chain"`
	Wallet         Optional[string]  `json:"wallet"`
	TokenAddress   Optional[string]  `json:"token_address"`
	CoinID         Optional[string]  `json:"coin_id"`
	ManualQuantity Optional[float64] `json:"manual_quantity"`
	CategoryID     Optional[string]  `json:"category_id"`
	BucketWeight   Optional[float64] `json:"bucket_weight"`
}

// Empty reports whether the patch sets no field
func (p AssetPatch) Empty() bool {
	return !(p.Name.Set || p.Code.Set || p.Quantity.Set || p.Amount.Set || p.Chain.Set ||
		p.Wallet.Set || p.TokenAddress.Set || p.CoinID.Set || p.ManualQuantity.Set ||
		p.CategoryID.Set || p.BucketWeight.Set)
}

func trimmed(o Optional[string]) string {
	if o.Value == nil {
		return ""
	}
	return strings.TrimSpace(*o.Value)
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// Apply writes the patch onto a
func (p AssetPatch) Apply(a *domain.Asset) {
	if p.Name.Set {
		a.Name = trimmed(p.Name)
	}
	if p.CategoryID.Set {
		if id := trimmed(p.CategoryID); id != "" {
			a.CategoryID = &id
		} else {
			a.CategoryID = nil
		}
	}
	if p.BucketWeight.Set {
		a.BucketWeight = p.BucketWeight.Value
	}

	switch a.Kind {
	case domain.AssetKindListed:
		if p.Code.Set {
			a.Code = trimmed(p.Code)
		}
		if p.Quantity.Set && p.Quantity.Value != nil {
			a.Quantity = nonNegative(*p.Quantity.Value)
		}
	case domain.AssetKindCrypto:
		if p.Chain.Set {
			a.Chain = strings.ToLower(trimmed(p.Chain))
		}
		if p.Wallet.Set {
			a.Wallet = trimmed(p.Wallet)
		}
		if p.TokenAddress.Set {
			a.TokenAddress = trimmed(p.TokenAddress)
		}
		if p.CoinID.Set {
			a.CoinID = strings.ToLower(trimmed(p.CoinID))
		}
		if p.ManualQuantity.Set {
			if p.ManualQuantity.Value != nil {
				q := nonNegative(*p.ManualQuantity.Value)
				a.ManualQuantity = &q
			} else {
				a.ManualQuantity = nil
			}
		}
	case domain.AssetKindCash:
		if p.Name.Set && a.Name == "" {
			a.Name = "Cash"
		}
		if p.Amount.Set && p.Amount.Value != nil {
			a.Amount = nonNegative(*p.Amount.Value)
		}
	}
}

// BatchResult lists the assets a batch update changed and the ids it could not find
type BatchResult struct {
	Updated  []string `json:"updated"`
	NotFound []string `json:"not_found"`
}

// BatchUpdate applies patches to the stored assets and saves once. Patches
// without an id or without fields are ignored. The batch is all or nothing:
// when the result fails validation nothing is saved.
func (s *Service) BatchUpdate(patches []AssetPatch) (*BatchResult, error) {
	cfg, err := s.Current()
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(cfg.Assets))
	for i, a := range cfg.Assets {
		index[a.ID] = i
	}

	res := &BatchResult{Updated: []string{}, NotFound: []string{}}
	for _, p := range patches {
		id := strings.TrimSpace(p.AssetID)
		if id == "" {
			continue
		}
		i, ok := index[id]
		if !ok {
			res.NotFound = append(res.NotFound, id)
			continue
		}
		if p.Empty() {
			continue
		}
		p.Apply(&cfg.Assets[i])
		res.Updated = append(res.Updated, id)
	}

	if len(res.Updated) > 0 {
		if _, err := s.Save(cfg); err != nil {
			return nil, err
		}
	}
	return res, nil
}

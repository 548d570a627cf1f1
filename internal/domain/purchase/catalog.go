package purchase

import (
	"fmt"
	"strconv"
	"strings"
)

// Catalog パッケージIDと付与クレジット数の対応表
type Catalog map[string]int64

// ParseCatalog "starter:10,pro:30" 形式の文字列からCatalogを作成
func ParseCatalog(s string) (Catalog, error) {
	catalog := make(Catalog)
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, value, ok := strings.Cut(item, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid package definition: %q", item)
		}
		credits, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || credits <= 0 {
			return nil, fmt.Errorf("invalid credits for package %q", name)
		}
		catalog[strings.TrimSpace(name)] = credits
	}
	if len(catalog) == 0 {
		return nil, fmt.Errorf("package catalog is empty")
	}
	return catalog, nil
}

// Credits パッケージの付与クレジット数を返す
func (c Catalog) Credits(packageID string) (int64, error) {
	credits, ok := c[packageID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPackage, packageID)
	}
	return credits, nil
}

package services

import "strings"

// Dictionary maps Japanese maker, model, colour and body type labels to
// their canonical Latin spelling. Lookups never fail: unknown tokens are
// returned as given.
type Dictionary struct {
	brands    map[string]string
	codes     map[string]string
	models    map[string]string
	colors    map[string]string
	bodyTypes map[string]string
}

// NewDictionary returns the built-in tables.
func NewDictionary() *Dictionary {
	return &Dictionary{
		brands: map[string]string{
			"トヨタ":     "Toyota",
			"レクサス":    "Lexus",
			"日産":      "Nissan",
			"ニッサン":    "Nissan",
			"ホンダ":     "Honda",
			"マツダ":     "Mazda",
			"スバル":     "Subaru",
			"スズキ":     "Suzuki",
			"ダイハツ":    "Daihatsu",
			"三菱":      "Mitsubishi",
			"ミツビシ":    "Mitsubishi",
			"いすゞ":     "Isuzu",
			"メルセデス・ベンツ": "Mercedes-Benz",
			"BMW":     "BMW",
			"フォルクスワーゲン": "Volkswagen",
			"アウディ":    "Audi",
			"ポルシェ":    "Porsche",
			"ボルボ":     "Volvo",
			"ミニ":      "MINI",
			"ジープ":     "Jeep",
		},
		codes: map[string]string{
			"TO": "Toyota",
			"LE": "Lexus",
			"NI": "Nissan",
			"HO": "Honda",
			"MA": "Mazda",
			"SB": "Subaru",
			"SZ": "Suzuki",
			"DA": "Daihatsu",
			"MI": "Mitsubishi",
		},
		models: map[string]string{
			"タウンエースバン": "Town Ace Van",
			"タウンエース":   "Town Ace",
			"ハイエースバン":  "Hiace Van",
			"ハイエース":    "Hiace",
			"アクア":      "Aqua",
			"プリウス":     "Prius",
			"カローラ":     "Corolla",
			"ヤリス":      "Yaris",
			"アルファード":   "Alphard",
			"ヴォクシー":    "Voxy",
			"ノア":       "Noah",
			"クラウン":     "Crown",
			"ランドクルーザー": "Land Cruiser",
			"シビック":     "Civic",
			"フィット":     "Fit",
			"ヴェゼル":     "Vezel",
			"フリード":     "Freed",
			"ステップワゴン":  "Step Wagon",
			"N-BOX":    "N-BOX",
			"ノート":      "Note",
			"セレナ":      "Serena",
			"エクストレイル":  "X-Trail",
			"リーフ":      "Leaf",
			"デミオ":      "Demio",
			"ロードスター":   "Roadster",
			"インプレッサ":   "Impreza",
			"フォレスター":   "Forester",
			"ジムニー":     "Jimny",
			"スイフト":     "Swift",
			"ハスラー":     "Hustler",
			"タント":      "Tanto",
			"ムーヴ":      "Move",
			"デリカD:5":   "Delica D:5",
		},
		colors: map[string]string{
			"白":     "White",
			"ホワイト":  "White",
			"パール":   "Pearl",
			"黒":     "Black",
			"ブラック":  "Black",
			"銀":     "Silver",
			"シルバー":  "Silver",
			"グレー":   "Gray",
			"灰":     "Gray",
			"赤":     "Red",
			"レッド":   "Red",
			"青":     "Blue",
			"ブルー":   "Blue",
			"紺":     "Navy",
			"緑":     "Green",
			"黄":     "Yellow",
			"茶":     "Brown",
			"ベージュ":  "Beige",
			"オレンジ":  "Orange",
			"ピンク":   "Pink",
			"紫":     "Purple",
			"ゴールド":  "Gold",
		},
		bodyTypes: map[string]string{
			"セダン":      "Sedan",
			"バン":       "Van",
			"商用車":      "Van",
			"ミニバン":     "Minivan",
			"ワンボックス":   "Minivan",
			"ハッチバック":   "Hatchback",
			"コンパクトカー":  "Compact",
			"軽自動車":     "Kei Car",
			"SUV":      "SUV",
			"クロカン":     "SUV",
			"ステーションワゴン": "Wagon",
			"ワゴン":      "Wagon",
			"クーペ":      "Coupe",
			"オープンカー":   "Convertible",
			"トラック":     "Truck",
			"ピックアップトラック": "Pickup",
		},
	}
}

// NormalizeBrand maps a maker token such as "トヨタ" to "Toyota".
func (d *Dictionary) NormalizeBrand(token string) string {
	token = strings.TrimSpace(token)
	if v, ok := d.brands[token]; ok {
		return v
	}
	return token
}

// NormalizeModel translates the first remaining title token and keeps the
// grade tokens after it: "タウンエースバン 1.5 GL 4WD" becomes
// "Town Ace Van 1.5 GL 4WD". brand is accepted in either script.
func (d *Dictionary) NormalizeModel(brand string, rest []string) string {
	out := make([]string, 0, len(rest))
	for _, tok := range rest {
		if tok = strings.TrimSpace(tok); tok != "" {
			out = append(out, tok)
		}
	}
	// titles sometimes repeat the maker before the model
	if len(out) > 1 && d.NormalizeBrand(out[0]) == d.NormalizeBrand(brand) {
		out = out[1:]
	}
	if len(out) == 0 {
		return ""
	}
	if v, ok := d.models[out[0]]; ok {
		out[0] = v
	}
	return strings.Join(out, " ")
}

// BrandFromCode resolves the BRDC search parameter.
func (d *Dictionary) BrandFromCode(code string) (string, bool) {
	v, ok := d.codes[strings.ToUpper(strings.TrimSpace(code))]
	return v, ok
}

// NormalizeColor maps a body colour. Compound labels such as
// "パールホワイト" resolve through their last known component.
func (d *Dictionary) NormalizeColor(token string) string {
	token = strings.TrimSpace(token)
	if v, ok := d.colors[token]; ok {
		return v
	}
	for _, suffix := range []string{"ホワイト", "ブラック", "シルバー", "ブルー", "レッド", "グレー"} {
		if strings.HasSuffix(token, suffix) {
			return d.colors[suffix]
		}
	}
	return token
}

func (d *Dictionary) NormalizeBodyType(token string) string {
	token = strings.TrimSpace(token)
	if v, ok := d.bodyTypes[token]; ok {
		return v
	}
	return token
}

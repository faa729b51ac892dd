package carsensor

import "testing"

const detailURL = "https://www.carsensor.net/usedcar/detail/AU6757636162/index.html"

func TestExtractPrimaryImage(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   string
		wantOK bool
	}{
		{
			name:   "fixture gallery",
			markup: "",
			want:   "https://ccsrpcma.carsensor.net/CSphoto/bkkn/394/002/U00051394002/U00051394002_002L.JPG",
			wantOK: true,
		},
		{
			name:   "main photo container",
			markup: `<div id="js-mainPhoto"><img src="//img.example.com/main.jpg"></div><img src="/a.jpg" width="900">`,
			want:   "https://img.example.com/main.jpg",
			wantOK: true,
		},
		{
			name:   "og image",
			markup: `<head><meta property="og:image" content="https://img.example.com/og.jpg"></head><img src="/b.jpg" width="500">`,
			want:   "https://img.example.com/og.jpg",
			wantOK: true,
		},
		{
			name:   "twitter image",
			markup: `<head><meta name="twitter:image" content="/tw.jpg"></head>`,
			want:   "https://www.carsensor.net/tw.jpg",
			wantOK: true,
		},
		{
			name: "widest non-logo image",
			markup: `<img src="/img/site_logo.png" width="1200">
				<img src="/img/icon_star.png" width="1000">
				<img src="/p/small.jpg" width="120">
				<img src="/p/large.jpg" width="640px">
				<img src="/p/nowidth.jpg">`,
			want:   "https://www.carsensor.net/p/large.jpg",
			wantOK: true,
		},
		{
			name:   "nothing usable",
			markup: `<img src="/p/nowidth.jpg"><img src="/img/logo.png" width="300">`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			markup := tt.markup
			if markup == "" {
				markup = loadFixture(t, "detail.html")
			}
			got, ok := ExtractPrimaryImage(detailURL, markup)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("got %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

package candidate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	for _, in := range []string{"all", "Importance", " priority ", "LIST"} {
		_, err := ParseMode(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseMode("random")
	assert.Error(t, err)
}

func TestSourceFilter(t *testing.T) {
	f, err := Source{Mode: ModeAll}.Filter("EQ")
	require.NoError(t, err)
	assert.Equal(t, Filter{Classification: "EQ"}, f)

	f, err = Source{Mode: ModeImportance}.Filter("EQ")
	require.NoError(t, err)
	assert.True(t, f.ByImportance)

	f, err = Source{Mode: ModePriority}.Filter("EQ")
	require.NoError(t, err)
	assert.Len(t, f.Priority, 40)
	assert.Equal(t, "HDFCBANK", f.Priority[0])

	f, err = Source{Mode: ModeList, Symbols: []string{"tcs", " infy", "TCS", ""}}.Filter("EQ")
	require.NoError(t, err)
	assert.Equal(t, []string{"TCS", "INFY"}, f.Priority)

	_, err = Source{Mode: ModeList}.Filter("EQ")
	assert.Error(t, err)

	_, err = Source{Mode: "bogus"}.Filter("EQ")
	assert.Error(t, err)

	assert.Equal(t, "all", Source{}.String())
}

func TestPrioritySymbolsUnique(t *testing.T) {
	assert.Equal(t, PrioritySymbols, NormalizeList(PrioritySymbols))
}

func TestReadListFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
		return p
	}

	tests := []struct {
		name    string
		path    string
		want    []string
		wantErr bool
	}{
		{
			name: "text with comments and commas",
			path: write("list.txt", "# banks\nhdfcbank\nICICIBANK, SBIN # psu\n\nTCS\ntcs\n"),
			want: []string{"HDFCBANK", "ICICIBANK", "SBIN", "TCS"},
		},
		{
			name: "yaml sequence",
			path: write("seq.yaml", "- tcs\n- INFY\n- TCS\n"),
			want: []string{"TCS", "INFY"},
		},
		{
			name: "yaml mapping",
			path: write("map.yml", "symbols:\n  - M&M\n  - bajaj-auto\n"),
			want: []string{"M&M", "BAJAJ-AUTO"},
		},
		{
			name:    "yaml garbage",
			path:    write("bad.yaml", "symbols: {nested: [\n"),
			wantErr: true,
		},
		{
			name:    "missing file",
			path:    filepath.Join(dir, "missing.txt"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadListFile(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitSymbols(t *testing.T) {
	assert.Equal(t, []string{"TCS", "INFY", "WIPRO"}, SplitSymbols("tcs,infy  wipro,,TCS"))
	assert.Empty(t, SplitSymbols(""))
}

func TestImportanceLess(t *testing.T) {
	big := Symbol{Symbol: "B", MarketLot: 100}
	small := Symbol{Symbol: "A", MarketLot: 1}
	assert.True(t, importanceLess(big, small))

	hiFace := Symbol{Symbol: "Z", MarketLot: 1, FaceValue: decimal.NewFromInt(10)}
	loFace := Symbol{Symbol: "A", MarketLot: 1, FaceValue: decimal.NewFromInt(1)}
	assert.True(t, importanceLess(hiFace, loFace))

	// full tie falls back to ascending symbol
	assert.True(t, importanceLess(Symbol{Symbol: "A"}, Symbol{Symbol: "B"}))
	assert.False(t, importanceLess(Symbol{Symbol: "B"}, Symbol{Symbol: "A"}))
}

func TestParseListingCSV(t *testing.T) {
	input := "\ufeffSYMBOL,NAME OF COMPANY, SERIES,DATE OF LISTING,MARKET LOT,ISIN NUMBER,FACE VALUE\n" +
		"20MICRONS,20 Microns Limited,EQ,06-OCT-2008,1,INE144J01027,5\n" +
		"M&M,Mahindra & Mahindra Limited,EQ,01-JAN-1996,1,INE101A01026,5\n" +
		"NIFTY 50,,,,,,\n" +
		"\"TCS \",Tata Consultancy Services Limited,,25-AUG-2004,\"1,000\",INE467B01029,1.00\n" +
		"20MICRONS,dup,EQ,,,,\n"

	got, err := ParseListingCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "20MICRONS", got[0].Symbol)
	assert.Equal(t, "20 Microns Limited", got[0].DisplayName)
	assert.True(t, got[0].Active)
	assert.True(t, got[0].FaceValue.Equal(decimal.NewFromInt(5)))

	assert.Equal(t, "M&M", got[1].Symbol)

	assert.Equal(t, "TCS", got[2].Symbol)
	assert.Equal(t, "EQ", got[2].Classification)
	assert.Equal(t, int64(1000), got[2].MarketLot)
}

func TestParseListingCSV_Errors(t *testing.T) {
	_, err := ParseListingCSV(strings.NewReader("NAME,SERIES\nfoo,EQ\n"))
	assert.Error(t, err)

	_, err = ParseListingCSV(strings.NewReader("SYMBOL,MARKET LOT\nTCS,lots\n"))
	assert.Error(t, err)

	_, err = ParseListingCSV(strings.NewReader(""))
	assert.Error(t, err)
}

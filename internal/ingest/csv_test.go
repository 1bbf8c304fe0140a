package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCheckouts_ChineseHeaders(t *testing.T) {
	data := "\ufeff國碼,電話號碼,分店,設計師,結帳操作時間,項目,指定\n" +
		"886,0912-345-678,信義店,Amy,2024-03-01 10:00:00,剪髮 60分鐘,是\n" +
		"886.0,912345678.0,,Ben,2024/03/02 11:30,,\n" +
		",,,,,,\n"

	f, err := ReadCheckouts(strings.NewReader(data), "bills.csv", "大安店")

	require.NoError(t, err)
	require.Len(t, f.Rows, 2)
	assert.True(t, f.Columns.Provider)
	assert.True(t, f.Columns.ServiceItem)
	assert.True(t, f.Columns.Requested)

	first := f.Rows[0]
	assert.Equal(t, "0912-345-678", first.PhoneNumber)
	assert.Equal(t, "信義店", first.Location)
	assert.Equal(t, "2024-03-01 10:00:00", first.CheckoutText)
	assert.True(t, first.CheckoutAt.IsZero())
	require.NotNil(t, first.Requested)
	assert.True(t, *first.Requested)

	second := f.Rows[1]
	assert.Equal(t, "大安店", second.Location, "blank location falls back to the store name")
	assert.Nil(t, second.Requested)
	assert.Equal(t, "bills.csv", second.SourceFile)
}

func TestReadCheckouts_EnglishHeadersWithoutOptionalColumns(t *testing.T) {
	data := "Country Code,Phone Number,Checkout_At,Stylist\n886,912000001,2024-03-01,Amy\n"

	f, err := ReadCheckouts(strings.NewReader(data), "x.csv", "Main")

	require.NoError(t, err)
	require.Len(t, f.Rows, 1)
	assert.Equal(t, "Main", f.Rows[0].Location)
	assert.True(t, f.Columns.Location)
	assert.True(t, f.Columns.Provider)
	assert.False(t, f.Columns.ServiceItem)
	assert.False(t, f.Columns.Requested)
}

func TestReadCheckouts_MissingColumns(t *testing.T) {
	_, err := ReadCheckouts(strings.NewReader("電話號碼,結帳操作時間\n912,2024-01-01\n"), "a.csv", "")
	assert.True(t, errors.Is(err, ErrMissingIdentity))

	_, err = ReadCheckouts(strings.NewReader("國碼,電話號碼\n886,912\n"), "a.csv", "")
	assert.True(t, errors.Is(err, ErrMissingCheckout))

	f, err := ReadCheckouts(strings.NewReader("國碼,電話號碼,結帳操作時間\n886,912,2024-01-01\n"), "a.csv", "")
	require.NoError(t, err)
	assert.False(t, f.Columns.Provider, "the engine reports the missing provider dimension")
}

func TestInferStoreName(t *testing.T) {
	tests := []struct{ in, want string }{
		{in: "信義店_帳單紀錄_2024-05-01.csv", want: "信義店"},
		{in: "大安店帳單.csv", want: "大安店"},
		{in: "Daan-branch_export.csv", want: "Daan branch export"},
		{in: "20240501123456.csv", want: "20240501123456"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InferStoreName(tt.in), tt.in)
	}
}

func TestLoadSnapshot_MergesFilesAndMembers(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "信義店_帳單.csv", "國碼,電話號碼,設計師,結帳操作時間,項目\n886,912000001,Amy,2024-03-01 10:00,30分鐘\n")
	b := writeFile(t, dir, "大安店_帳單.csv", "國碼,電話號碼,設計師,結帳操作時間\n886,912000002,Ben,2024-03-02 10:00\n")
	m := writeFile(t, dir, "members.csv", "國碼,手機號碼,會員姓名,來店次數\n886,912000001,林小姐,12\n886,912000002,王先生,\n")

	snap, err := LoadSnapshot([]string{a, b}, m)

	require.NoError(t, err)
	require.Len(t, snap.Rows, 2)
	assert.Equal(t, "信義店", snap.Rows[0].Location)
	assert.Equal(t, "大安店", snap.Rows[1].Location)
	assert.True(t, snap.Columns.Provider)
	assert.False(t, snap.Columns.ServiceItem, "second file has no item column")

	require.Len(t, snap.Members, 2)
	assert.Equal(t, "林小姐", snap.Members[0].Name)
	require.NotNil(t, snap.Members[0].VisitCount)
	assert.Equal(t, 12, *snap.Members[0].VisitCount)
	assert.Nil(t, snap.Members[1].VisitCount)
}

func TestLoadSnapshot_Errors(t *testing.T) {
	_, err := LoadSnapshot(nil, "")
	assert.Error(t, err)

	_, err = LoadSnapshot([]string{filepath.Join(t.TempDir(), "missing.csv")}, "")
	assert.Error(t, err)
}

func TestReadMembers_RequiresIdentity(t *testing.T) {
	_, err := ReadMembers(strings.NewReader("會員姓名\n林\n"))
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

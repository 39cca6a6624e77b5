package export

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"constellation/document"
	"constellation/record"
)

func sampleRows(t *testing.T) []Row {
	t.Helper()
	created := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	acme := record.NewClient("Acme")
	acme.ID = "11111111-1111-4111-8111-111111111111"
	acme.Slug = "acme"
	acme.CreatedAt, acme.UpdatedAt = created, created
	acme.SetEmail("hello@acme.test")
	acme.SetAddress(map[string]string{"City": "Springfield"})
	acme.Tags = []*record.Tag{record.NewTag("prospect"), record.NewTag("vip")}

	globex := record.NewClient("Globex")
	globex.ID = "22222222-2222-4222-8222-222222222222"
	globex.Slug = "globex"
	globex.Status = record.StatusArchived
	globex.CreatedAt, globex.UpdatedAt = created, created.Add(time.Hour)
	globex.SetWebsite("https://globex.test")

	return []Row{FromClient(acme), FromClient(globex)}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"json": FormatJSON, " YAML ": FormatYAML, "yml": FormatYAML, "cbor": FormatCBOR, "XLSX": FormatXLSX} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("csv")
	assert.Error(t, err)
}

func TestWriteJSONKeepsDocumentOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleRows(t)))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "Acme", decoded[0]["name"])
	assert.Equal(t, []any{"prospect", "vip"}, decoded[0]["tags"])
	assert.Equal(t, "2024-02-03T04:05:06Z", decoded[0]["created_at"])

	out := buf.String()
	assert.Less(t, bytes.Index(buf.Bytes(), []byte(`"email"`)), bytes.Index(buf.Bytes(), []byte(`"address"`)), out)
	assert.Contains(t, out, `"tags": []`)
}

func TestWriteEmptyJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatYAML, sampleRows(t)))

	var decoded []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "globex", decoded[1]["slug"])
	assert.Equal(t, "archived", decoded[1]["status"])
	data, ok := decoded[1]["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "https://globex.test", data["website"])
}

func TestWriteCBOR(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCBOR, sampleRows(t)))

	var decoded []struct {
		Name      string    `cbor:"name"`
		UpdatedAt time.Time `cbor:"updated_at"`
		Tags      []string  `cbor:"tags"`
	}
	require.NoError(t, cbor.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "Acme", decoded[0].Name)
	assert.Equal(t, []string{"prospect", "vip"}, decoded[0].Tags)
	assert.True(t, decoded[1].UpdatedAt.Equal(time.Date(2024, 2, 3, 5, 5, 6, 0, time.UTC)))
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, sampleRows(t)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Clients"}, f.GetSheetList())
	rows, err := f.GetRows("Clients")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ID", "Name", "Slug", "Status", "Created", "Updated", "Tags", "email", "address", "website"}, rows[0])
	assert.Equal(t, "Acme", rows[1][1])
	assert.Equal(t, "prospect, vip", rows[1][6])
	assert.Equal(t, "hello@acme.test", rows[1][7])
	assert.Equal(t, "https://globex.test", rows[2][9])
}

func TestFromClientCopiesDocument(t *testing.T) {
	c := record.NewClient("Acme")
	c.SetEmail("a@acme.test")
	row := FromClient(c)

	c.SetEmail("changed@acme.test")
	assert.Equal(t, "a@acme.test", row.Data.GetString(record.KeyEmail))
	assert.True(t, row.Data.Equal(func() *document.Map {
		m := document.NewMap()
		m.Set(record.KeyEmail, document.String("a@acme.test"))
		return m
	}()))
}

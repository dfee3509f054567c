package attachments

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incidentreg/core/kebab"
)

func TestResolveKind(t *testing.T) {
	d, err := ResolveKind("district-logo")
	require.NoError(t, err)
	assert.Equal(t, KindDistrictLogo, d.Kind)
	assert.Equal(t, "DistrictLogo", d.Name)
	assert.Equal(t, ParentDistrict, d.Parent)

	for _, token := range []string{"attachment", "supporting-material", "school-response-material"} {
		d, err := ResolveKind(token)
		require.NoError(t, err, token)
		assert.Equal(t, token, d.Token)
	}
}

func TestResolveKindRejectsUnknownTokens(t *testing.T) {
	for _, token := range []string{"no-such-thing", "school-district", "incident", "region", "", "District-Logo", "districtlogo", "district--logo"} {
		_, err := ResolveKind(token)
		var nf *NotFoundError
		assert.True(t, errors.As(err, &nf), "token %q", token)
	}
}

func TestDescriptorTableIsConsistent(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range Descriptors() {
		assert.Equal(t, kebab.ToKebab(d.Name), d.Token)
		assert.Equal(t, d.Name, kebab.ToCapitalized(d.Token))
		assert.False(t, seen[d.Table.Name], "table %s reused", d.Table.Name)
		seen[d.Table.Name] = true
		got, ok := Lookup(d.Kind)
		require.True(t, ok)
		assert.Equal(t, d, got)
		assert.Equal(t, d.Token, d.Kind.Token())
	}
	assert.Len(t, seen, 4)
}

func TestDescriptorsReturnsCopy(t *testing.T) {
	all := Descriptors()
	all[0].Token = "mutated"
	assert.Equal(t, "attachment", Descriptors()[0].Token)
}

func TestContentType(t *testing.T) {
	ct, ok := ContentType("logo.svg")
	require.True(t, ok)
	assert.Equal(t, "image/svg+xml", ct)
	assert.True(t, IsImage(ct))

	ct, ok = ContentType("report.pdf")
	require.True(t, ok)
	assert.Equal(t, "application/pdf", ct)
	assert.False(t, IsImage(ct))

	ct, ok = ContentType("PHOTO.PNG")
	require.True(t, ok)
	assert.Equal(t, "image/png", ct)

	_, ok = ContentType("notes")
	assert.False(t, ok)
	_, ok = ContentType("blob.zz-unknown-ext")
	assert.False(t, ok)
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("image/jpeg"))
	assert.True(t, IsImage("IMAGE/WEBP"))
	assert.True(t, IsImage("image/svg+xml; charset=utf-8"))
	assert.False(t, IsImage("application/pdf"))
	assert.False(t, IsImage("imagefoo"))
	assert.False(t, IsImage(""))
}

func TestLocator(t *testing.T) {
	assert.Equal(t, "/a/district-logo/seattle.png", Locator(KindDistrictLogo, "seattle.png"))
	assert.Equal(t, "/a/supporting-material/letter%20home.pdf", Locator(KindSupportingMaterial, "letter home.pdf"))
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("a.pdf"))
	assert.Error(t, ValidateName(" "))
	assert.Error(t, ValidateName("../etc/passwd"))
	assert.Error(t, ValidateName(".."))
}

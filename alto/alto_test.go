package alto

import "testing"

const sampleALTO = `<?xml version="1.0" encoding="UTF-8"?>
<alto xmlns="http://www.loc.gov/standards/alto/ns-v3#">
  <Layout>
    <Page WIDTH="2164" HEIGHT="2448">
      <PrintSpace WIDTH="2000" HEIGHT="2300">
        <TextBlock ID="block1">
          <TextLine HPOS="100" VPOS="200" WIDTH="800" HEIGHT="40">
            <String CONTENT="Ode" HPOS="100" VPOS="200" WIDTH="380" HEIGHT="40"/>
            <String CONTENT="In" HPOS="490" VPOS="200" WIDTH="180" HEIGHT="40"/>
            <String CONTENT="Solemni" HPOS="680" VPOS="200" WIDTH="220" HEIGHT="40"/>
          </TextLine>
        </TextBlock>
      </PrintSpace>
    </Page>
  </Layout>
</alto>`

func TestParse(t *testing.T) {
	page, err := Parse([]byte(sampleALTO))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if page.PageWidth != 2164 || page.PageHeight != 2448 {
		t.Fatalf("page dims = %dx%d, want 2164x2448", page.PageWidth, page.PageHeight)
	}
	if len(page.Lines) != 1 {
		t.Fatalf("len(Lines) = %d, want 1", len(page.Lines))
	}
	line := page.Lines[0]
	if line.Text != "Ode In Solemni" {
		t.Fatalf("Text = %q, want %q", line.Text, "Ode In Solemni")
	}
	if line.Bounds != (Box{X: 100, Y: 200, W: 800, H: 40}) {
		t.Fatalf("Bounds = %+v", line.Bounds)
	}
}

func TestParseRejectsZeroDimensionPage(t *testing.T) {
	bad := `<alto><Layout><Page WIDTH="0" HEIGHT="0"><PrintSpace/></Page></Layout></alto>`
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatal("expected error for zero-dimension page")
	}
}

func TestScale(t *testing.T) {
	page, err := Parse([]byte(sampleALTO))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	page.Scale(0.5)
	if page.PageWidth != 1082 || page.PageHeight != 1224 {
		t.Fatalf("scaled page dims = %dx%d", page.PageWidth, page.PageHeight)
	}
	want := Box{X: 50, Y: 100, W: 400, H: 20}
	if page.Lines[0].Bounds != want {
		t.Fatalf("scaled bounds = %+v, want %+v", page.Lines[0].Bounds, want)
	}
}

package catalog

import (
	"time"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/shopscout-tw/shopscout/engine/domain"
)

// Payload field names. These are the scalar fields the collection carries
// alongside the name embedding; site, keyword, price_twd and timestamp are
// index-backed and filterable.
const (
	fieldSite      = "site"
	fieldName      = "name"
	fieldPrice     = "price_twd"
	fieldHref      = "href"
	fieldImageURL  = "image_url"
	fieldKeyword   = "keyword"
	fieldTimestamp = "timestamp"
)

func payloadFromDoc(doc domain.ProductDocument) map[string]*pb.Value {
	return map[string]*pb.Value{
		fieldSite:      {Kind: &pb.Value_StringValue{StringValue: string(doc.Site)}},
		fieldName:      {Kind: &pb.Value_StringValue{StringValue: doc.Name}},
		fieldPrice:     {Kind: &pb.Value_DoubleValue{DoubleValue: doc.PriceTWD}},
		fieldHref:      {Kind: &pb.Value_StringValue{StringValue: doc.Href}},
		fieldImageURL:  {Kind: &pb.Value_StringValue{StringValue: doc.ImageURL}},
		fieldKeyword:   {Kind: &pb.Value_StringValue{StringValue: doc.Keyword}},
		fieldTimestamp: {Kind: &pb.Value_IntegerValue{IntegerValue: doc.Timestamp.Unix()}},
	}
}

func docFromPayload(id string, payload map[string]*pb.Value, vector []float32) domain.ProductDocument {
	doc := domain.ProductDocument{ID: id, Embedding: vector}
	for k, v := range payload {
		switch k {
		case fieldSite:
			doc.Site = domain.Site(v.GetStringValue())
		case fieldName:
			doc.Name = v.GetStringValue()
		case fieldPrice:
			doc.PriceTWD = v.GetDoubleValue()
		case fieldHref:
			doc.Href = v.GetStringValue()
		case fieldImageURL:
			doc.ImageURL = v.GetStringValue()
		case fieldKeyword:
			doc.Keyword = v.GetStringValue()
		case fieldTimestamp:
			doc.Timestamp = time.Unix(v.GetIntegerValue(), 0).UTC()
		}
	}
	return doc
}

// Hit is a single nearest-neighbor match.
type Hit struct {
	Doc   domain.ProductDocument
	Score float32
}

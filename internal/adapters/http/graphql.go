package http

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/core/usecases"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	binStatusEnum := graphql.NewEnum(graphql.EnumConfig{
		Name: "BinStatus",
		Values: graphql.EnumValueConfigMap{
			"EMPTY": &graphql.EnumValueConfig{Value: domain.BinEmpty},
			"FULL":  &graphql.EnumValueConfig{Value: domain.BinFull},
		},
	})

	// graphql-go resolves fields by json tag, so domain structs are returned as-is.
	binFields := graphql.Fields{
		"id":          &graphql.Field{Type: graphql.String},
		"label":       &graphql.Field{Type: graphql.String},
		"status":      &graphql.Field{Type: binStatusEnum},
		"coordinates": &graphql.Field{Type: geoPointType},
	}
	binType := graphql.NewObject(graphql.ObjectConfig{Name: "Bin", Fields: binFields})

	nearbyFields := graphql.Fields{"distance": &graphql.Field{Type: graphql.Float}}
	for k, v := range binFields {
		nearbyFields[k] = v
	}
	nearbyType := graphql.NewObject(graphql.ObjectConfig{
		Name: "NearbyBin",
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return nearbyFields
		}),
	})

	placeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Place",
		Fields: graphql.Fields{
			"label":       &graphql.Field{Type: graphql.String},
			"coordinates": &graphql.Field{Type: geoPointType},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"bins": &graphql.Field{
				Type:        graphql.NewList(binType),
				Description: "All collection points",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Bins.List(p.Context)
				},
			},
			"bin": &graphql.Field{
				Type:        binType,
				Description: "A collection point by id",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Bins.Get(p.Context, p.Args["id"].(string))
				},
			},
			"binsNearby": &graphql.Field{
				Type:        graphql.NewList(nearbyType),
				Description: "Collection points near a location, nearest first",
				Args: graphql.FieldConfigArgument{
					"lat":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"radius": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 500.0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					center := domain.GeoPoint{Lat: p.Args["lat"].(float64), Lon: p.Args["lon"].(float64)}
					if !center.Valid() {
						return nil, fmt.Errorf("lat/lon out of range")
					}
					near, err := deps.Bins.Nearby(p.Context, center, p.Args["radius"].(float64), p.Args["limit"].(int))
					if err != nil {
						return nil, err
					}
					// Flatten the embedded location for field resolution.
					out := make([]map[string]interface{}, 0, len(near))
					for _, n := range near {
						out = append(out, map[string]interface{}{
							"id":          n.ID,
							"label":       n.Label,
							"status":      n.Status,
							"coordinates": n.Coordinates,
							"distance":    n.Distance,
						})
					}
					return out, nil
				},
			},
			"geocode": &graphql.Field{
				Type:        graphql.NewList(placeType),
				Description: "Look up places by free text",
				Args: graphql.FieldConfigArgument{
					"query": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Geocoder == nil {
						return nil, fmt.Errorf("geocoding is not configured")
					}
					return deps.Geocoder.Search(p.Context, p.Args["query"].(string))
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"createBin": &graphql.Field{
				Type:        binType,
				Description: "Add a collection point; omit lat/lon to use the point picked on the map",
				Args: graphql.FieldConfigArgument{
					"label":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"status": &graphql.ArgumentConfig{Type: binStatusEnum, DefaultValue: domain.BinEmpty},
					"lat":    &graphql.ArgumentConfig{Type: graphql.Float},
					"lon":    &graphql.ArgumentConfig{Type: graphql.Float},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					st, _ := p.Args["status"].(domain.BinStatus)
					in := usecases.CreateBin{Label: p.Args["label"].(string), Status: st}
					lat, hasLat := p.Args["lat"].(float64)
					lon, hasLon := p.Args["lon"].(float64)
					if hasLat != hasLon {
						return nil, fmt.Errorf("lat and lon must be given together")
					}
					if hasLat {
						in.Coordinates = &domain.GeoPoint{Lat: lat, Lon: lon}
					}
					return deps.Bins.Create(p.Context, in)
				},
			},
			"setBinStatus": &graphql.Field{
				Type:        binType,
				Description: "Mark a collection point empty or full",
				Args: graphql.FieldConfigArgument{
					"id":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"status": &graphql.ArgumentConfig{Type: graphql.NewNonNull(binStatusEnum)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					st, _ := p.Args["status"].(domain.BinStatus)
					return deps.Bins.SetStatus(p.Context, p.Args["id"].(string), st)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil || req.Query == "" {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}

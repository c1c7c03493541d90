package location

import "sync"

var (
	defaultOnce     sync.Once
	defaultTaxonomy *Taxonomy
)

// DefaultTaxonomy returns the built-in Dominican Republic taxonomy.
func DefaultTaxonomy() *Taxonomy {
	defaultOnce.Do(func() {
		defaultTaxonomy = NewTaxonomy(dominicanCities, dominicanZones)
	})
	return defaultTaxonomy
}

var dominicanCities = []Entry{
	{Canonical: "Santo Domingo", Aliases: []string{
		"santo domingo", "santo domingo de guzmán", "santo domingo de guzman",
		"distrito nacional", "d.n.", "dn", "sto. dgo.", "sto dgo", "sto. domingo", "sd",
	}},
	{Canonical: "Santo Domingo Este", Aliases: []string{"santo domingo este", "sde", "sto. dgo. este", "sto dgo este"}},
	{Canonical: "Santo Domingo Norte", Aliases: []string{"santo domingo norte", "sdn", "sto. dgo. norte"}},
	{Canonical: "Santo Domingo Oeste", Aliases: []string{"santo domingo oeste", "sdo", "sto. dgo. oeste"}},
	{Canonical: "Santiago", Aliases: []string{"santiago", "santiago de los caballeros", "stgo", "stgo."}},
	{Canonical: "Punta Cana", Aliases: []string{"punta cana", "puntacana", "bávaro-punta cana", "bavaro punta cana"}},
	{Canonical: "La Romana", Aliases: []string{"la romana", "romana"}},
	{Canonical: "Puerto Plata", Aliases: []string{"puerto plata", "pto. plata", "pto plata"}},
	{Canonical: "San Pedro de Macorís", Aliases: []string{"san pedro de macorís", "san pedro de macoris", "san pedro"}},
	{Canonical: "La Vega", Aliases: []string{"la vega", "concepción de la vega"}},
	{Canonical: "Jarabacoa", Aliases: []string{"jarabacoa"}},
	{Canonical: "Higüey", Aliases: []string{"higüey", "salvaleón de higüey"}},
	{Canonical: "Samaná", Aliases: []string{"samaná", "santa bárbara de samaná"}},
	{Canonical: "Las Terrenas", Aliases: []string{"las terrenas"}},
	{Canonical: "Juan Dolio", Aliases: []string{"juan dolio"}},
	{Canonical: "Boca Chica", Aliases: []string{"boca chica"}},
	{Canonical: "Sosúa", Aliases: []string{"sosúa"}},
	{Canonical: "Cabarete", Aliases: []string{"cabarete"}},
}

var dominicanZones = []Entry{
	// Distrito Nacional
	{Canonical: "Piantini", Aliases: []string{"piantini", "ens. piantini", "ensanche piantini"}},
	{Canonical: "Naco", Aliases: []string{"naco", "ens. naco", "ensanche naco"}},
	{Canonical: "Evaristo Morales", Aliases: []string{"evaristo morales", "ens. evaristo morales"}},
	{Canonical: "Serrallés", Aliases: []string{"serrallés", "ens. serrallés"}},
	{Canonical: "Paraíso", Aliases: []string{"paraíso", "ens. paraíso", "ensanche paraíso"}},
	{Canonical: "Bella Vista", Aliases: []string{"bella vista", "bellavista"}},
	{Canonical: "La Esperilla", Aliases: []string{"la esperilla", "esperilla"}},
	{Canonical: "Los Cacicazgos", Aliases: []string{"los cacicazgos", "cacicazgos"}},
	{Canonical: "Mirador Sur", Aliases: []string{"mirador sur", "mirador del sur"}},
	{Canonical: "Mirador Norte", Aliases: []string{"mirador norte", "mirador del norte"}},
	{Canonical: "Arroyo Hondo", Aliases: []string{"arroyo hondo", "arroyo hondo viejo"}},
	{Canonical: "Julieta Morales", Aliases: []string{"julieta morales", "julieta"}},
	{Canonical: "Gazcue", Aliases: []string{"gazcue"}},
	{Canonical: "Zona Colonial", Aliases: []string{"zona colonial", "ciudad colonial", "ciudad colonial de santo domingo"}},
	{Canonical: "Ensanche Quisqueya", Aliases: []string{"ensanche quisqueya", "quisqueya", "ens. quisqueya"}},
	{Canonical: "Los Prados", Aliases: []string{"los prados"}},
	{Canonical: "El Millón", Aliases: []string{"el millón", "millón"}},
	{Canonical: "Renacimiento", Aliases: []string{"renacimiento", "urb. renacimiento"}},
	{Canonical: "Urbanización Fernández", Aliases: []string{"urbanización fernández", "urb. fernández"}},
	{Canonical: "La Julia", Aliases: []string{"la julia"}},
	{Canonical: "Altos de Arroyo Hondo", Aliases: []string{"altos de arroyo hondo"}},
	{Canonical: "Cuesta Hermosa", Aliases: []string{"cuesta hermosa"}},
	// Santo Domingo Este
	{Canonical: "Alma Rosa", Aliases: []string{"alma rosa", "alma rosa i", "alma rosa ii"}},
	{Canonical: "Ensanche Ozama", Aliases: []string{"ensanche ozama", "ozama"}},
	{Canonical: "San Isidro", Aliases: []string{"san isidro"}},
	// Santiago
	{Canonical: "Cerros de Gurabo", Aliases: []string{"cerros de gurabo", "gurabo"}},
	{Canonical: "Los Jardines Metropolitanos", Aliases: []string{"los jardines metropolitanos", "jardines metropolitanos", "los jardines"}},
	{Canonical: "Villa Olga", Aliases: []string{"villa olga"}},
	{Canonical: "La Trinitaria", Aliases: []string{"la trinitaria"}},
	{Canonical: "Reparto Panorama", Aliases: []string{"reparto panorama", "panorama"}},
	// Este
	{Canonical: "Bávaro", Aliases: []string{"bávaro", "bavaro"}},
	{Canonical: "Cap Cana", Aliases: []string{"cap cana", "capcana"}},
	{Canonical: "Cocotal", Aliases: []string{"cocotal", "cocotal golf"}},
	{Canonical: "Los Corales", Aliases: []string{"los corales"}},
	{Canonical: "White Sands", Aliases: []string{"white sands"}},
	{Canonical: "Casa de Campo", Aliases: []string{"casa de campo"}},
}

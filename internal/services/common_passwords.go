package services

// commonPasswords is a short list of the most frequently leaked passwords,
// lower-cased.
var commonPasswords = []string{
	"123456", "password", "12345678", "qwerty", "123456789", "12345", "1234",
	"111111", "1234567", "dragon", "123123", "baseball", "abc123", "football",
	"monkey", "letmein", "696969", "shadow", "master", "666666", "qwertyuiop",
	"123321", "mustang", "1234567890", "michael", "654321", "superman",
	"1qaz2wsx", "7777777", "121212", "000000", "qazwsx", "123qwe", "killer",
	"trustno1", "jordan", "jennifer", "zxcvbnm", "asdfgh", "hunter", "buster",
	"soccer", "harley", "batman", "andrew", "tigger", "sunshine", "iloveyou",
	"2000", "charlie", "robert", "thomas", "hockey", "ranger", "daniel",
	"starwars", "klaster", "112233", "george", "computer", "michelle",
	"jessica", "pepper", "1111", "zxcvbn", "555555", "11111111", "131313",
	"freedom", "777777", "pass", "maggie", "159753", "aaaaaa", "ginger",
	"princess", "joshua", "cheese", "amanda", "summer", "love", "ashley",
	"nicole", "chelsea", "biteme", "matthew", "access", "yankees", "987654321",
	"dallas", "austin", "thunder", "taylor", "matrix", "mobilemail", "mom",
	"monitor", "monitoring", "montana", "moon", "moscow", "password1",
	"password123", "passw0rd", "welcome", "welcome1", "admin", "admin123",
	"administrator", "root", "toor", "changeme", "secret", "letmein1",
	"qwerty123", "qwerty1", "1q2w3e4r", "1q2w3e", "q1w2e3r4", "zaq12wsx",
	"abcd1234", "abcdef", "abcdefg", "abcdefgh", "asdfasdf", "asdfghjkl",
	"iloveyou1", "login", "master123", "football1", "baseball1", "superman1",
	"dragon1", "shadow1", "sunshine1", "princess1", "whatever", "trustme",
	"starwars1", "hello", "hello123", "test", "test123", "testing", "guest",
	"default", "qwe123", "123abc", "1234qwer", "11111", "22222222", "88888888",
	"00000000", "12341234", "87654321", "99999999", "passpass", "pa55word",
}
